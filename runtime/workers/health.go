package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type HealthRecorder interface {
	SetChannels(n int)
	ObserveProcess(cpuPercent float64, rssBytes uint64)
}

type ChannelLister interface {
	Channels() []string
}

// HealthWorker samples the portal process and the pub/sub registry every
// interval.
type HealthWorker struct {
	log      *slog.Logger
	recorder HealthRecorder
	channels ChannelLister
	interval time.Duration
	pid      int32
}

func NewHealthWorker(log *slog.Logger, recorder HealthRecorder, channels ChannelLister, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, recorder: recorder, channels: channels, interval: interval, pid: int32(os.Getpid())}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *HealthWorker) sample(proc *process.Process) {
	w.recorder.SetChannels(len(w.channels.Channels()))

	cpu, err := proc.Percent(0)
	if err != nil {
		w.log.Debug("Error while finding process cpu usage", "pid", w.pid, "err", err)
		return
	}
	memory, err := proc.MemoryInfo()
	if err != nil {
		w.log.Debug("Error while finding process memory usage", "pid", w.pid, "err", err)
		return
	}
	w.recorder.ObserveProcess(cpu, memory.RSS)
}
