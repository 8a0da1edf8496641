package dataset

import (
	"strings"
	"time"
)

func computeStats(docs []Metadata, totalRecords int64, now time.Time) Stats {
	var totalSize, monthSize float64
	monthCount := 0
	counts := make(map[string]int, len(StatsCategories))

	year, month, _ := now.Date()
	for _, doc := range docs {
		size := ParseSizeMB(doc.Size)
		totalSize += size

		y, m, _ := doc.Uploaded.In(now.Location()).Date()
		if y == year && m == month {
			monthCount++
			monthSize += size
		}
		counts[strings.ToLower(doc.Category)]++
	}

	distribution := make([]CategoryShare, 0, len(StatsCategories))
	for _, category := range StatsCategories {
		share := CategoryShare{
			Category:   category,
			Count:      counts[category],
			Percentage: "0.00",
		}
		if len(docs) > 0 {
			share.Percentage = FormatMB(float64(share.Count) / float64(len(docs)) * 100)
		}
		distribution = append(distribution, share)
	}

	return Stats{
		TotalDatasets:  len(docs),
		TotalSizeMB:    FormatMB(totalSize),
		ThisMonthCount: monthCount,
		ThisMonthSize:  FormatMB(monthSize),
		TotalRecords:   totalRecords,
		Distribution:   distribution,
	}
}
