package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"
)

const (
	ReportFilename   = "database_report.csv"
	reportTimeLayout = "2006-01-02 15:04:05"
)

func (s *service) ExportReport(ctx context.Context, now time.Time) (Report, error) {
	stats, err := s.AggregateStats(ctx, now)
	if err != nil {
		return Report{}, err
	}
	docs, err := s.List(ctx)
	if err != nil {
		return Report{}, err
	}

	logCtx, cancel := s.opContext(ctx)
	defer cancel()
	logs, err := s.repo.ListActivity(logCtx, reportActivityLimit)
	if err != nil {
		return Report{}, upstream("list activity", err)
	}

	content, err := renderReport(stats, docs, logs, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{Filename: ReportFilename, Content: content}
	if s.archive != nil {
		saveCtx, cancelSave := context.WithTimeout(ctx, 30*time.Second)
		defer cancelSave()
		key, checksum, err := s.archive.Save(saveCtx, ReportFilename, content)
		if err != nil {
			s.log.Warnw("archive report failed", "bucket", s.archive.Bucket(), "error", err)
		} else {
			report.ObjectKey = key
			s.log.Infow("report archived", "bucket", s.archive.Bucket(), "key", key, "sha256", checksum)
		}
	}
	return report, nil
}

func renderReport(stats Stats, docs []Metadata, logs []ActivityLog, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("=== DATABASE STATISTICS ===\n")
	summary := [][]string{
		{"Total Datasets", strconv.Itoa(stats.TotalDatasets)},
		{"Total Size (MB)", stats.TotalSizeMB},
		{"Datasets Added This Month", strconv.Itoa(stats.ThisMonthCount)},
		{"Size Added This Month (MB)", stats.ThisMonthSize},
		{"Total Records", strconv.FormatInt(stats.TotalRecords, 10)},
		{"Generated At", now.Format(reportTimeLayout)},
	}
	if err := writeRecords(&buf, summary); err != nil {
		return nil, err
	}

	buf.WriteString("\n=== DATASET METADATA ===\n")
	if len(docs) == 0 {
		buf.WriteString("No datasets available\n")
	} else {
		rows := [][]string{{"name", "category", "size", "uploaded", "status"}}
		for _, doc := range docs {
			rows = append(rows, []string{doc.Name, doc.Category, doc.Size, doc.Uploaded.Format(reportTimeLayout), doc.Status})
		}
		if err := writeRecords(&buf, rows); err != nil {
			return nil, err
		}
	}

	buf.WriteString("\n=== RECENT ACTIVITY LOGS ===\n")
	if len(logs) == 0 {
		buf.WriteString("No recent activity logs found\n")
	} else {
		rows := [][]string{{"action", "details", "time", "user"}}
		for _, entry := range logs {
			rows = append(rows, []string{entry.Action, entry.Details, entry.Timestamp.Format(reportTimeLayout), entry.User})
		}
		if err := writeRecords(&buf, rows); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writeRecords(buf *bytes.Buffer, rows [][]string) error {
	w := csv.NewWriter(buf)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
