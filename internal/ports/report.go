package ports

import "registry-retain/internal/types"

type ReportWriterPort interface {
	WriteCleanupReport(path string, report types.CleanupReport) error
}
