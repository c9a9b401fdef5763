package taskgroup

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "taskgroup")

// Group 管理守护进程的常驻任务（管理面、评估循环等）：
// 带名启动、panic 兜底、统一等待退出。
// 任何一个任务 panic 不能拖垮整个交易进程。
type Group struct {
	wg sync.WaitGroup
}

// New 创建任务组
func New() *Group {
	return &Group{}
}

// Go 启动一个命名任务。任务 panic 被捕获并记录，不向外传播。
func (g *Group) Go(name string, fn func()) {
	if fn == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("⚠️ 任务 %s panic: %v\n%s", name, r, debug.Stack())
			}
		}()
		log.Debugf("任务启动: %s", name)
		fn()
		log.Debugf("任务退出: %s", name)
	}()
}

// Wait 阻塞直到所有任务退出
func (g *Group) Wait() {
	g.wg.Wait()
}
