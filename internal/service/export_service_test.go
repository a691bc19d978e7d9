package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/relay"
	"github.com/infinitystory/humanstudy/internal/store"
)

type memoryStorage struct {
	objects map[string][]byte
	failURL bool
}

func (m *memoryStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryStorage) GetSignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if m.failURL {
		return "", errors.New("presign failed")
	}
	return "https://signed.example.com/" + key, nil
}

func completedComparison(t *testing.T, svc *SessionService) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.StartComparison(ctx, testDevice, nil)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := svc.SubmitComparison(ctx, testDevice, allSlot(model.SlotA))
		require.NoError(t, err)
	}
}

func completedReview(t *testing.T, svc *SessionService) {
	t.Helper()
	r := require.New(t)
	ctx := context.Background()
	_, err := svc.StartReview(ctx, testDevice, nil)
	r.NoError(err)
	_, err = svc.SubmitRating(ctx, testDevice, &model.RatingSubmitRequest{Rating: 5, Comments: "great, really"})
	r.NoError(err)
	_, err = svc.SkipTask(ctx, testDevice)
	r.NoError(err)
	_, err = svc.SubmitRating(ctx, testDevice, &model.RatingSubmitRequest{Rating: 1})
	r.NoError(err)
	for i := 0; i < 3; i++ {
		_, err = svc.SubmitReview(ctx, testDevice, &model.ReviewSubmitRequest{
			Ratings: map[string]int{"narrative": 4, "quality": 3},
		})
		r.NoError(err)
	}
}

func TestExportComparisonCSV(t *testing.T) {
	r := require.New(t)
	sessions := newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil)
	completedComparison(t, sessions)
	svc := NewExportService(sessions, nil, nil)

	file, err := svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowComparison,
		Format: model.ExportCSV,
	})
	r.NoError(err)
	r.Equal("text/csv", file.ContentType)
	r.True(strings.HasPrefix(file.FileName, "comparison_results_EVAL_"))
	r.True(strings.HasSuffix(file.FileName, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	r.Len(lines, 3)
	r.Equal("Comparison,Episode,Episode Index,Video A,Video B,Video C,Best Background,Best Transitions,Best Characters,Best Motion,Best Aesthetic", lines[0])

	rows, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	r.NoError(err)
	first := rows[1]
	r.Equal("1", first[0])
	r.Equal("ep1.mp4", first[1])
	r.Equal("0", first[2])
	// Every answer named slot A, which resolves to the Video A method
	for _, winner := range first[6:] {
		r.Equal(first[3], winner)
	}
}

func TestExportComparisonJSON(t *testing.T) {
	r := require.New(t)
	sessions := newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil)
	completedComparison(t, sessions)
	svc := NewExportService(sessions, nil, nil)

	file, err := svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowComparison,
		Format: model.ExportJSON,
	})
	r.NoError(err)
	r.Equal("application/json", file.ContentType)

	var batch model.ComparisonBatch
	r.NoError(json.Unmarshal(file.Data, &batch))
	r.Len(batch.Comparisons, 2)
	r.Equal(2, batch.TotalComparisons)
}

func TestExportReviewWorkbook(t *testing.T) {
	r := require.New(t)
	sessions := newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil)
	completedReview(t, sessions)
	svc := NewExportService(sessions, nil, nil)
	svc.clock = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }

	file, err := svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowReview,
		Format: model.ExportXLSX,
	})
	r.NoError(err)
	r.Regexp(`^evaluation_EVAL_\d+_[0-9a-f]{9}_2024-05-02\.xlsx$`, file.FileName)

	f, err := excelize.OpenReader(bytes.NewReader(file.Data))
	r.NoError(err)
	defer f.Close()

	r.Equal([]string{"Segment Evaluations", "Wholistic Reviews", "Summary"}, f.GetSheetList())

	segments, err := f.GetRows("Segment Evaluations")
	r.NoError(err)
	r.Len(segments, 4)
	r.Equal([]string{"Task Index", "Paper", "Section", "Clip", "Rating (Stars)", "Comments", "Timestamp"}, segments[0])
	r.Equal("5", segments[1][4])
	r.Equal("great, really", segments[1][5])
	r.Equal("", segments[2][4])
	r.Equal(model.SkippedComment, segments[2][5])

	reviews, err := f.GetRows("Wholistic Reviews")
	r.NoError(err)
	r.Len(reviews, 4)
	r.Equal([]string{"Paper", "Comments", "Timestamp", "Narrative (Stars)", "Quality (Stars)"}, reviews[0])
	r.Equal("4", reviews[1][3])
	r.Equal("3", reviews[1][4])

	summary, err := f.GetRows("Summary")
	r.NoError(err)
	fields := map[string]string{}
	for _, row := range summary[1:] {
		fields[row[0]] = row[1]
	}
	r.Equal("3", fields["Total Questions"])
	r.Equal("2", fields["Completed Segments"])
	r.Equal("1", fields["Skipped Segments"])
	r.Equal("3", fields["Papers Reviewed"])
	r.Equal("5-Star Scale", fields["Rating System"])
}

func TestExportReviewCSVSkippedRating(t *testing.T) {
	sessions := newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil)
	completedReview(t, sessions)
	svc := NewExportService(sessions, nil, nil)

	file, err := svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowReview,
		Format: model.ExportCSV,
	})
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "great, really", rows[1][5])
	assert.Equal(t, "", rows[2][4])
}

func TestExportUpload(t *testing.T) {
	r := require.New(t)
	sessions := newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil)
	completedComparison(t, sessions)
	storage := &memoryStorage{objects: map[string][]byte{}}
	svc := NewExportService(sessions, storage, nil)
	r.True(svc.CanUpload())

	file, err := svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowComparison,
		Format: model.ExportJSON,
	})
	r.NoError(err)

	resp, err := svc.Upload(context.Background(), testDevice, file)
	r.NoError(err)
	r.True(strings.HasPrefix(resp.Key, "exports/"+testDevice+"/"))
	r.True(strings.HasSuffix(resp.Key, file.FileName))
	r.Equal("https://cdn.example.com/"+resp.Key, resp.URL)
	r.Equal("https://signed.example.com/"+resp.Key, resp.DownloadURL)
	r.Equal(len(file.Data), resp.Size)
	r.Equal(file.Data, storage.objects[resp.Key])

	storage.failURL = true
	resp, err = svc.Upload(context.Background(), testDevice, file)
	r.NoError(err)
	r.Empty(resp.DownloadURL)
}

func TestExportWithoutStorage(t *testing.T) {
	svc := NewExportService(newTestService(store.NewMemoryStore(), relay.Forwarders{}, nil, nil), nil, nil)
	assert.False(t, svc.CanUpload())

	_, err := svc.Upload(context.Background(), testDevice, &ExportFile{FileName: "x.json"})
	assert.Error(t, err)

	_, err = svc.Export(context.Background(), testDevice, &model.ExportRequest{
		Flow:   model.FlowReview,
		Format: model.ExportJSON,
	})
	assert.ErrorIs(t, err, ErrNoResults)
}
