package app

import (
	"time"

	"registry-retain/internal/adapters"
	"registry-retain/internal/ports"
)

type Service struct {
	ReportWriter ports.ReportWriterPort
	Clock        func() time.Time
	Sleep        func(time.Duration)
}

func NewService() Service {
	return Service{
		ReportWriter: adapters.NewReportFileAdapter(),
		Clock:        time.Now,
		Sleep:        time.Sleep,
	}
}

func (s Service) sleep(d time.Duration) {
	if s.Sleep == nil {
		time.Sleep(d)
		return
	}
	s.Sleep(d)
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}
