// FilePath: internal/streamer/timing.go
package streamer

import (
	"math"
	"time"

	"github.com/verdantio/aquahub/internal/dataset"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

// DueReadings is the result of mapping real elapsed time onto dataset
// position: the rows whose native timestamps have been reached, the
// watermark range they consume, and whether the dataset is exhausted.
type DueReadings struct {
	Rows        []dataset.Row `json:"rows"`
	FromIndex   int           `json:"from_index"`
	ToIndex     int           `json:"to_index"`
	IsComplete  bool          `json:"is_complete"`
	DatasetTime time.Time     `json:"dataset_time"`
}

// dueReadings computes which rows are due for a session right now.
// Elapsed wall time minus pause time, scaled by the speed multiplier,
// is added to the dataset's first timestamp; every unsent row at or
// before that instant is due. A gap in triggering simply yields a
// larger batch on the next tick.
func (s *Service) dueReadings(session *models.StreamingSession, variant models.DatasetVariant, multiplier float64) (*DueReadings, error) {
	summary, err := s.Datasets.Load(session.Kind, variant)
	if err != nil {
		return nil, errors.NewInternalError("failed to load dataset", err)
	}

	now := s.Clock.Now()
	if summary.RowCount == 0 || session.LastRowSent >= summary.RowCount {
		return &DueReadings{
			Rows:       []dataset.Row{},
			FromIndex:  session.LastRowSent,
			ToIndex:    session.LastRowSent,
			IsComplete: true,
		}, nil
	}

	effective := effectiveElapsed(session, now, multiplier)
	datasetTime := summary.FirstTimestamp.Add(effective)

	// Rows are time-ordered; scan forward from the watermark and stop
	// at the first row past the current dataset instant.
	rows := []dataset.Row{}
	index := session.LastRowSent
	for index < summary.RowCount {
		row, ok := s.Datasets.Row(session.Kind, variant, index)
		if !ok {
			break
		}
		if row.Timestamp.After(datasetTime) {
			break
		}
		rows = append(rows, *row)
		index++
	}

	return &DueReadings{
		Rows:        rows,
		FromIndex:   session.LastRowSent,
		ToIndex:     index,
		IsComplete:  index >= summary.RowCount,
		DatasetTime: datasetTime,
	}, nil
}

// effectiveElapsed is real elapsed time minus total pause time (plus
// the still-open pause, if any), compressed by the speed multiplier.
func effectiveElapsed(session *models.StreamingSession, now time.Time, multiplier float64) time.Duration {
	elapsed := now.Sub(session.StartedAt)

	paused := time.Duration(session.TotalPausedMs) * time.Millisecond
	if session.Status == models.SessionPaused && session.PausedAt != nil {
		paused += now.Sub(*session.PausedAt)
	}

	effective := elapsed - paused
	if effective < 0 {
		effective = 0
	}
	if multiplier > 1 {
		effective = time.Duration(float64(effective) * multiplier)
	}
	return effective
}

// expectedCompletion projects when the session will exhaust its
// dataset: start plus the dataset's own span (compressed by the
// multiplier) plus accumulated pause time.
func (s *Service) expectedCompletion(startedAt time.Time, totalPausedMs int64, kind models.DeviceKind, variant models.DatasetVariant, multiplier float64) (time.Time, error) {
	summary, err := s.Datasets.Load(kind, variant)
	if err != nil {
		return time.Time{}, errors.NewInternalError("failed to load dataset", err)
	}

	span := summary.Duration
	if multiplier > 1 {
		span = time.Duration(float64(span) / multiplier)
	}
	return startedAt.Add(span).Add(time.Duration(totalPausedMs) * time.Millisecond), nil
}

// CalculateProgress derives the session's replay progress: percentage
// of rows delivered, projected remaining real time, and a completion
// instant. Exhausted and empty datasets report 100% / zero remaining
// without dividing by zero.
func (s *Service) CalculateProgress(session *models.StreamingSession, variant models.DatasetVariant, multiplier float64) (*models.SessionProgress, error) {
	progress := &models.SessionProgress{
		SessionID: session.ID,
		Status:    session.Status,
		RowsSent:  session.LastRowSent,
	}

	if session.TotalRows == 0 || session.LastRowSent >= session.TotalRows {
		progress.Percentage = 100
		progress.TimeRemainingMs = 0
		now := s.Clock.Now()
		progress.ProjectedCompletionAt = &now
		return progress, nil
	}

	progress.RowsRemaining = session.TotalRows - session.LastRowSent
	pct := float64(session.LastRowSent) / float64(session.TotalRows) * 100
	progress.Percentage = math.Round(pct*100) / 100

	summary, err := s.Datasets.Load(session.Kind, variant)
	if err != nil {
		return nil, errors.NewInternalError("failed to load dataset", err)
	}

	currentIndex := session.LastRowSent
	if currentIndex >= summary.RowCount {
		currentIndex = summary.RowCount - 1
	}
	current, ok := s.Datasets.Row(session.Kind, variant, currentIndex)
	if ok && summary.RowCount > 0 {
		remaining := summary.LastTimestamp.Sub(current.Timestamp)
		if multiplier > 1 {
			remaining = time.Duration(float64(remaining) / multiplier)
		}
		remaining += time.Duration(session.TotalPausedMs) * time.Millisecond
		if remaining < 0 {
			remaining = 0
		}
		progress.TimeRemainingMs = remaining.Milliseconds()
		completion := s.Clock.Now().Add(remaining)
		progress.ProjectedCompletionAt = &completion
	}

	return progress, nil
}
