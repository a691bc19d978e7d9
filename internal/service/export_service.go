package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/infinitystory/humanstudy/internal/client"
	"github.com/infinitystory/humanstudy/internal/metrics"
	"github.com/infinitystory/humanstudy/internal/model"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	signedURLExpiry = 24 * time.Hour
)

var comparisonHeader = []string{
	"Comparison", "Episode", "Episode Index",
	"Video A", "Video B", "Video C",
	"Best Background", "Best Transitions", "Best Characters", "Best Motion", "Best Aesthetic",
}

var segmentHeader = []string{
	"Task Index", "Paper", "Section", "Clip", "Rating (Stars)", "Comments", "Timestamp",
}

// ExportFile is a rendered result file
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders result files and optionally uploads them
type ExportService struct {
	sessions *SessionService
	storage  client.StorageClient
	metrics  *metrics.Metrics
	clock    func() time.Time
}

// NewExportService creates an export service. storage may be nil, in which
// case uploads are refused.
func NewExportService(sessions *SessionService, storage client.StorageClient, m *metrics.Metrics) *ExportService {
	return &ExportService{
		sessions: sessions,
		storage:  storage,
		metrics:  m,
		clock:    time.Now,
	}
}

// CanUpload reports whether an object store is configured
func (s *ExportService) CanUpload() bool {
	return s.storage != nil
}

// Export renders the results of a device in the requested format
func (s *ExportService) Export(ctx context.Context, deviceID string, req *model.ExportRequest) (*ExportFile, error) {
	var (
		file *ExportFile
		err  error
	)
	switch req.Flow {
	case model.FlowComparison:
		file, err = s.exportComparison(ctx, deviceID, req.Format)
	case model.FlowReview:
		file, err = s.exportReview(ctx, deviceID, req.Format)
	default:
		return nil, fmt.Errorf("unknown flow %q", req.Flow)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Exports.WithLabelValues(string(req.Format)).Inc()
	}
	return file, nil
}

// Upload stores a rendered file and returns where to fetch it
func (s *ExportService) Upload(ctx context.Context, deviceID string, file *ExportFile) (*model.ExportResponse, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object storage not configured")
	}

	key := fmt.Sprintf("exports/%s/%s/%s", deviceID, uuid.New().String(), file.FileName)
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(file.Data), file.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload export: %w", err)
	}

	resp := &model.ExportResponse{
		Key:      key,
		FileName: file.FileName,
		URL:      url,
		Size:     len(file.Data),
	}
	if signed, err := s.storage.GetSignedURL(ctx, key, signedURLExpiry); err == nil {
		resp.DownloadURL = signed
		resp.ExpiresAt = s.clock().Add(signedURLExpiry)
	}
	return resp, nil
}

func (s *ExportService) exportComparison(ctx context.Context, deviceID string, format model.ExportFormat) (*ExportFile, error) {
	batch, err := s.sessions.ComparisonResults(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	base := "comparison_results_" + batch.EvaluatorID

	switch format {
	case model.ExportJSON:
		return jsonFile(base, batch)
	case model.ExportCSV:
		data, err := writeCSV(comparisonHeader, comparisonRows(batch.Comparisons))
		if err != nil {
			return nil, err
		}
		return &ExportFile{FileName: base + ".csv", ContentType: contentTypeCSV, Data: data}, nil
	case model.ExportXLSX:
		data, err := comparisonWorkbook(batch)
		if err != nil {
			return nil, err
		}
		return &ExportFile{FileName: base + ".xlsx", ContentType: contentTypeXLSX, Data: data}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func (s *ExportService) exportReview(ctx context.Context, deviceID string, format model.ExportFormat) (*ExportFile, error) {
	res, err := s.sessions.ReviewResults(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("evaluation_%s_%s", res.Data.EvaluatorID, s.clock().UTC().Format("2006-01-02"))

	switch format {
	case model.ExportJSON:
		return jsonFile(base, res.Data)
	case model.ExportCSV:
		data, err := writeCSV(segmentHeader, segmentRows(res.Data.SegmentEvaluations))
		if err != nil {
			return nil, err
		}
		return &ExportFile{FileName: base + ".csv", ContentType: contentTypeCSV, Data: data}, nil
	case model.ExportXLSX:
		data, err := reviewWorkbook(res)
		if err != nil {
			return nil, err
		}
		return &ExportFile{FileName: base + ".xlsx", ContentType: contentTypeXLSX, Data: data}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func jsonFile(base string, v interface{}) (*ExportFile, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return &ExportFile{FileName: base + ".json", ContentType: contentTypeJSON, Data: data}, nil
}

func comparisonRows(results []model.ComparisonResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(r.ComparisonIndex),
			r.Episode,
			strconv.Itoa(r.EpisodeIndex),
			r.VideoA,
			r.VideoB,
			r.VideoC,
			r.Answers.BackgroundConsistency,
			r.Answers.Transitions,
			r.Answers.CharacterConsistency,
			r.Answers.MotionSmoothness,
			r.Answers.ImageQualityAesthetic,
		})
	}
	return rows
}

func ratingText(r *int) string {
	if r == nil {
		return ""
	}
	return strconv.Itoa(*r)
}

func segmentRows(evals []model.SegmentEvaluation) [][]string {
	rows := make([][]string, 0, len(evals))
	for _, e := range evals {
		rows = append(rows, []string{
			strconv.Itoa(e.TaskIndex),
			e.PaperName,
			e.SectionName,
			e.ClipFilename,
			ratingText(e.Rating),
			e.FollowUpComments,
			e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter appends rows to a workbook and keeps the first error
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) sheet(name string, first bool) {
	if w.err != nil {
		return
	}
	if first {
		w.err = w.f.SetSheetName("Sheet1", name)
		return
	}
	_, w.err = w.f.NewSheet(name)
}

func (w *sheetWriter) row(sheet string, n int, values []interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func (w *sheetWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", w.err)
	}
	buf, err := w.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func comparisonWorkbook(batch *model.ComparisonBatch) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	w := &sheetWriter{f: f}

	const results = "Comparisons"
	w.sheet(results, true)
	w.row(results, 1, toRow(comparisonHeader))
	for i, r := range comparisonRows(batch.Comparisons) {
		w.row(results, i+2, toRow(r))
	}

	const summary = "Summary"
	w.sheet(summary, false)
	w.row(summary, 1, []interface{}{"Field", "Value"})
	w.row(summary, 2, []interface{}{"Evaluator ID", batch.EvaluatorID})
	w.row(summary, 3, []interface{}{"Timestamp", batch.Timestamp.UTC().Format(time.RFC3339)})
	w.row(summary, 4, []interface{}{"Total Comparisons", batch.TotalComparisons})
	w.row(summary, 5, []interface{}{"Completed Comparisons", len(batch.Comparisons)})

	return w.bytes()
}

func reviewWorkbook(res *ReviewResults) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	w := &sheetWriter{f: f}
	data := res.Data

	const segments = "Segment Evaluations"
	w.sheet(segments, true)
	w.row(segments, 1, toRow(segmentHeader))
	for i, e := range data.SegmentEvaluations {
		var rating interface{}
		if e.Rating != nil {
			rating = *e.Rating
		}
		w.row(segments, i+2, []interface{}{
			e.TaskIndex, e.PaperName, e.SectionName, e.ClipFilename,
			rating, e.FollowUpComments, e.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	const reviews = "Wholistic Reviews"
	w.sheet(reviews, false)
	header := []interface{}{"Paper", "Comments", "Timestamp"}
	for _, c := range res.Criteria {
		header = append(header, c.Name+" (Stars)")
	}
	w.row(reviews, 1, header)
	for i, e := range data.WholisticEvaluations {
		row := []interface{}{e.PaperName, e.OverallComments, e.Timestamp.UTC().Format(time.RFC3339)}
		for _, c := range res.Criteria {
			if v, ok := e.Ratings[c.ID]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		w.row(reviews, i+2, row)
	}

	endTime := ""
	if data.EndTime != nil {
		endTime = data.EndTime.UTC().Format(time.RFC3339)
	}

	const summary = "Summary"
	w.sheet(summary, false)
	rows := [][]interface{}{
		{"Field", "Value"},
		{"Evaluator ID", data.EvaluatorID},
		{"Start Time", data.StartTime.UTC().Format(time.RFC3339)},
		{"End Time", endTime},
		{"Total Questions", res.Summary.TotalQuestions},
		{"Completed Segments", res.Summary.CompletedSegments},
		{"Skipped Segments", res.Summary.SkippedSegments},
		{"Papers Reviewed", res.Summary.PapersReviewed},
		{"Completion Rate", fmt.Sprintf("%d%%", res.Summary.CompletionRate)},
		{"Rating System", "5-Star Scale"},
	}
	for i, r := range rows {
		w.row(summary, i+1, r)
	}

	return w.bytes()
}
