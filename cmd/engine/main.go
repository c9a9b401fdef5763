package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/stockbot/gostock/internal/config"
	"github.com/stockbot/gostock/internal/controlplane/server"
	"github.com/stockbot/gostock/internal/domain"
	"github.com/stockbot/gostock/internal/engine"
	"github.com/stockbot/gostock/internal/execution"
	"github.com/stockbot/gostock/internal/history"
	"github.com/stockbot/gostock/internal/marketdata"
	"github.com/stockbot/gostock/internal/metrics"
	"github.com/stockbot/gostock/internal/notify"
	"github.com/stockbot/gostock/internal/ports"
	"github.com/stockbot/gostock/pkg/logger"
	"github.com/stockbot/gostock/pkg/persistence"
	"github.com/stockbot/gostock/pkg/secretstore"
	"github.com/stockbot/gostock/pkg/shutdown"
	"github.com/stockbot/gostock/pkg/taskgroup"
)

const defaultPaperCash = 100000

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "环境变量文件路径")
	importSecrets := flag.Bool("import-secrets", false, "从环境变量导入券商/telegram 凭据后退出")
	runOnce := flag.Bool("run-once", false, "只跑一轮评估后退出")
	flag.Parse()

	// .env 不存在不算错误
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("⚠️ 加载 %s 失败: %v", *envFile, err)
	}

	appCfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("加载配置失败: %v", err))
	}

	if err := logger.Init(logger.Config{
		Level:      appCfg.LogLevel,
		OutputFile: appCfg.LogFile,
	}); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	if *importSecrets {
		if err := doImportSecrets(appCfg); err != nil {
			logrus.Fatalf("导入凭据失败: %v", err)
		}
		logrus.Info("✅ 凭据已导入")
		return
	}

	if err := run(appCfg, *runOnce); err != nil {
		logrus.Fatalf("引擎退出: %v", err)
	}
}

// doImportSecrets 一次性把环境变量里的凭据写入加密存储
func doImportSecrets(appCfg *config.AppConfig) error {
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          appCfg.SecretStoreDir,
		EncryptionKey: loadEncryptionKey(),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	pairs := map[string]string{
		secretstore.KeyBrokerAPIKey:    os.Getenv("BROKER_API_KEY"),
		secretstore.KeyBrokerAPISecret: os.Getenv("BROKER_API_SECRET"),
		secretstore.KeyTelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
	}
	for key, val := range pairs {
		if strings.TrimSpace(val) == "" {
			continue
		}
		if err := store.SetString(key, val); err != nil {
			return err
		}
		logrus.Infof("已写入 %s", key)
	}
	return nil
}

func loadEncryptionKey() []byte {
	raw := os.Getenv("SECRETSTORE_KEY")
	if raw == "" {
		return nil
	}
	key, err := secretstore.ParseKey(raw)
	if err != nil {
		logrus.Warnf("⚠️ SECRETSTORE_KEY 无效，存储不加密: %v", err)
		return nil
	}
	return key
}

// loadSecrets 只读打开凭据存储；打开失败时用空凭据继续（纸面模式不需要）
func loadSecrets(appCfg *config.AppConfig) (apiKey, apiSecret, tgToken string) {
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          appCfg.SecretStoreDir,
		EncryptionKey: loadEncryptionKey(),
		ReadOnly:      true,
	})
	if err != nil {
		logrus.Warnf("⚠️ 凭据存储不可用: %v", err)
		return "", "", ""
	}
	defer store.Close()

	apiKey, _, _ = store.GetString(secretstore.KeyBrokerAPIKey)
	apiSecret, _, _ = store.GetString(secretstore.KeyBrokerAPISecret)
	tgToken, _, _ = store.GetString(secretstore.KeyTelegramToken)
	return apiKey, apiSecret, tgToken
}

func run(appCfg *config.AppConfig, runOnce bool) error {
	svc := persistence.NewJSONFileService(appCfg.DataDir)
	cfgMgr := config.NewManager(svc)
	tradingCfg := cfgMgr.Get()

	apiKey, apiSecret, tgToken := loadSecrets(appCfg)

	hours := marketdata.NewNYSEHours(appCfg.ForceMarketOpen)
	yahoo := marketdata.NewYahooSource()
	tickers := marketdata.NewSnapshotBuilder(yahoo)

	// 撮合与持仓来源随交易模式走
	var exec ports.OrderExecutor
	var accounts marketdata.AccountSource
	if tradingCfg.Mode == domain.TradeModeLive {
		if appCfg.BrokerBaseURL == "" {
			return fmt.Errorf("live 模式需要配置 brokerBaseUrl")
		}
		broker := execution.NewBrokerClient(appCfg.BrokerBaseURL, apiKey, apiSecret)
		exec, accounts = broker, broker
		logrus.Warn("🔴 LIVE 模式：订单将真实提交")
	} else {
		paper := execution.NewPaperBroker(yahoo, svc, defaultPaperCash)
		exec, accounts = paper, paper
		logrus.Info("🧾 paper 模式：纸面撮合")
	}
	data := marketdata.NewProvider(yahoo, accounts)

	archive, err := history.Open(appCfg.HistoryDBPath)
	if err != nil {
		logrus.Warnf("⚠️ 历史档案不可用: %v", err)
		archive = nil
	}

	var notifier ports.Notifier = notify.NopNotifier{}
	if tg := notify.NewTelegramNotifier(tgToken, appCfg.TelegramChatID); tg != nil {
		notifier = tg
	}

	eng, err := engine.New(cfgMgr, data, exec, notifier, hours, tickers, svc, archive)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if runOnce {
		res, err := eng.RunCycle(ctx)
		if err != nil {
			return err
		}
		for _, line := range res.Reasoning {
			logrus.Info(line)
		}
		return nil
	}

	// 调试端口（可选）
	if appCfg.DebugListen != "" {
		if _, err := metrics.StartAsync(ctx, appCfg.DebugListen); err != nil {
			logrus.Warnf("⚠️ 调试服务启动失败: %v", err)
		} else {
			logrus.Infof("调试服务: http://%s/debug/vars", appCfg.DebugListen)
		}
	}

	sm := shutdown.NewManager()
	sm.OnShutdown(func(_ context.Context, _ *sync.WaitGroup) {
		if archive != nil {
			_ = archive.Close()
		}
	})

	// 管理面与主循环
	srv := server.New(eng, archive)
	tg := taskgroup.New()
	tg.Go("admin_server", func() {
		if err := srv.Run(appCfg.AdminListen); err != nil {
			logrus.Errorf("管理面退出: %v", err)
		}
	})
	tg.Go("host_loop", func() {
		hostLoop(ctx, eng, hours, appCfg.CycleInterval())
	})

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logrus.Infof("收到信号 %s，开始退出", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sm.Shutdown(shutdownCtx)
	return nil
}

// hostLoop 周期触发器：开盘期间按配置间隔跑评估轮，
// 每小时外加一次止损刷新，开盘前半小时做一次盘前刷新。
func hostLoop(ctx context.Context, eng *engine.Engine, hours ports.MarketHours, interval time.Duration) {
	cycleTicker := time.NewTicker(interval)
	defer cycleTicker.Stop()
	stopTicker := time.NewTicker(time.Hour)
	defer stopTicker.Stop()
	preOpenTicker := time.NewTicker(time.Minute)
	defer preOpenTicker.Stop()

	preOpenDone := ""

	// 启动先跑一轮
	runCycle(ctx, eng)

	for {
		select {
		case <-ctx.Done():
			return
		case <-cycleTicker.C:
			runCycle(ctx, eng)
		case <-stopTicker.C:
			if hours.IsOpen(time.Now()) {
				if err := eng.RefreshStops(ctx); err != nil {
					logrus.Warnf("⚠️ 止损刷新失败: %v", err)
				}
			}
		case <-preOpenTicker.C:
			// 盘前刷新：开盘前 30 分钟内做一次
			now := time.Now()
			m := hours.MinutesSinceOpen(now)
			if m < -30 || m >= 0 {
				continue
			}
			day := now.Format("2006-01-02")
			if preOpenDone == day {
				continue
			}
			preOpenDone = day
			if err := eng.RefreshStops(ctx); err != nil {
				logrus.Warnf("⚠️ 盘前止损刷新失败: %v", err)
			}
		}
	}
}

func runCycle(ctx context.Context, eng *engine.Engine) {
	res, err := eng.RunCycle(ctx)
	if err != nil {
		if err != engine.ErrEngineBusy {
			metrics.CycleErrors.Add(1)
			logrus.Errorf("评估轮失败: %v", err)
		}
		return
	}
	for _, line := range res.Reasoning {
		logrus.Info(line)
	}
}
