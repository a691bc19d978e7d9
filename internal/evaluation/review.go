package evaluation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/infinitystory/humanstudy/internal/model"
)

const followUpLabel = "Additional Comments (Optional):"

// ReviewSession runs the segment, wholistic and complete phases of a review.
// It is not safe for concurrent use.
type ReviewSession struct {
	cfg  *model.EvaluationConfig
	opts Options

	data       model.EvaluationData
	phase      model.Phase
	tasks      []model.SegmentTask
	taskIndex  int
	paperIndex int
	videoIndex int
	lastSave   time.Time
}

// StartReview opens a review session. A saved snapshot is resumed unless the
// prompter confirms discarding it twice; resuming reuses the saved task order.
func StartReview(ctx context.Context, cfg *model.EvaluationConfig, opts Options, p Prompter) (*ReviewSession, bool, error) {
	opts = opts.withDefaults()
	s := &ReviewSession{cfg: cfg, opts: opts}

	var snap model.ProgressSnapshot
	found, err := loadSnapshot(ctx, opts.Bridge, model.KeyReviewProgress, &snap)
	if err != nil {
		return nil, false, err
	}
	if found {
		if DecideResume(p) {
			if err := s.restore(snap); err != nil {
				return nil, false, err
			}
			notify(opts.Observer, s.View())
			return s, true, nil
		}
		opts.Bridge.Clear(ctx, model.KeyReviewProgress)
	}

	tasks, err := GenerateSegmentTasks(cfg, opts.Rand)
	if err != nil {
		return nil, false, err
	}

	now := opts.Clock()
	evaluatorID := opts.EvaluatorID
	if evaluatorID == "" {
		evaluatorID = NewEvaluatorID(now)
	}
	s.tasks = tasks
	s.phase = model.PhaseSegment
	s.data = model.EvaluationData{
		EvaluatorID:          evaluatorID,
		StartTime:            now,
		SegmentEvaluations:   []model.SegmentEvaluation{},
		WholisticEvaluations: []model.WholisticEvaluation{},
	}

	notify(opts.Observer, s.View())
	return s, false, nil
}

func (s *ReviewSession) restore(snap model.ProgressSnapshot) error {
	tasks, err := RestoreSegmentTasks(s.cfg, snap.TaskOrder)
	if err != nil {
		return err
	}
	s.tasks = tasks
	s.data = snap.EvaluationData
	s.phase = snap.CurrentPhase
	s.taskIndex = snap.CurrentTaskIndex
	s.paperIndex = snap.CurrentPaperIndex
	s.videoIndex = snap.CurrentWholisticVideoIndex
	s.lastSave = snap.LastSaveTime

	if s.data.EvaluatorID == "" {
		s.data.EvaluatorID = NewEvaluatorID(s.opts.Clock())
	}
	if s.data.SegmentEvaluations == nil {
		s.data.SegmentEvaluations = []model.SegmentEvaluation{}
	}
	if s.data.WholisticEvaluations == nil {
		s.data.WholisticEvaluations = []model.WholisticEvaluation{}
	}

	switch s.phase {
	case model.PhaseSegment, model.PhaseWholistic, model.PhaseComplete:
	default:
		s.phase = model.PhaseSegment
	}
	if s.taskIndex < 0 {
		s.taskIndex = 0
	}
	if s.phase == model.PhaseSegment && s.taskIndex >= len(s.tasks) {
		s.enterWholistic()
	}
	if s.phase == model.PhaseWholistic {
		if s.paperIndex < 0 {
			s.paperIndex = 0
		}
		if s.paperIndex >= len(s.cfg.Papers) {
			s.phase = model.PhaseComplete
		}
		if s.videoIndex < 0 || s.videoIndex >= len(s.wholisticClips()) {
			s.videoIndex = 0
		}
	}
	return nil
}

func (s *ReviewSession) EvaluatorID() string { return s.data.EvaluatorID }

func (s *ReviewSession) Phase() model.Phase { return s.phase }

func (s *ReviewSession) Tasks() []model.SegmentTask { return s.tasks }

func (s *ReviewSession) Data() model.EvaluationData { return s.data }

// CurrentTask returns the segment task awaiting a rating
func (s *ReviewSession) CurrentTask() (model.SegmentTask, bool) {
	if s.phase != model.PhaseSegment || s.taskIndex >= len(s.tasks) {
		return model.SegmentTask{}, false
	}
	return s.tasks[s.taskIndex], true
}

// CurrentPaper returns the method awaiting a wholistic review
func (s *ReviewSession) CurrentPaper() (model.Method, bool) {
	if s.phase != model.PhaseWholistic || s.paperIndex >= len(s.cfg.Papers) {
		return model.Method{}, false
	}
	return s.cfg.Papers[s.paperIndex], true
}

// SubmitRating records a star rating for the current segment task
func (s *ReviewSession) SubmitRating(ctx context.Context, rating int, comments string) (model.View, error) {
	if rating < 1 || rating > 5 {
		return s.View(), ErrInvalidRating
	}
	return s.recordSegment(ctx, &rating, comments)
}

// SkipTask records the current segment task as skipped
func (s *ReviewSession) SkipTask(ctx context.Context) (model.View, error) {
	return s.recordSegment(ctx, nil, model.SkippedComment)
}

func (s *ReviewSession) recordSegment(ctx context.Context, rating *int, comments string) (model.View, error) {
	if err := s.requirePhase(model.PhaseSegment); err != nil {
		return s.View(), err
	}
	task, _ := s.CurrentTask()

	s.data.SegmentEvaluations = append(s.data.SegmentEvaluations, model.SegmentEvaluation{
		TaskIndex:        s.taskIndex,
		PaperID:          task.Method.ID,
		PaperName:        task.Method.Name,
		SectionID:        task.Section.ID,
		SectionName:      task.Section.Name,
		ClipFilename:     task.Clip,
		Rating:           rating,
		FollowUpComments: comments,
		Timestamp:        s.opts.Clock(),
	})
	s.taskIndex++
	if s.taskIndex >= len(s.tasks) {
		s.enterWholistic()
	}
	return s.afterTransition(ctx), nil
}

// SubmitReview records criterion ratings for the current method. Unrated
// criteria are rejected unless acceptPartial confirms the evaluator wants to
// continue anyway.
func (s *ReviewSession) SubmitReview(ctx context.Context, ratings map[string]int, comments string, acceptPartial bool) (model.View, error) {
	if err := s.requirePhase(model.PhaseWholistic); err != nil {
		return s.View(), err
	}

	recorded := make(map[string]int, len(s.cfg.WholisticCriteria))
	var missing []string
	for _, c := range s.cfg.WholisticCriteria {
		v, ok := ratings[c.ID]
		if !ok || v == 0 {
			missing = append(missing, c.ID)
			continue
		}
		if v < 1 || v > 5 {
			return s.View(), fmt.Errorf("%w: criterion %s", ErrInvalidRating, c.ID)
		}
		recorded[c.ID] = v
	}
	if len(missing) > 0 && !acceptPartial {
		return s.View(), &IncompleteAnswerError{Missing: missing}
	}

	return s.recordWholistic(ctx, recorded, comments), nil
}

// SkipReview records the current method review as skipped
func (s *ReviewSession) SkipReview(ctx context.Context) (model.View, error) {
	if err := s.requirePhase(model.PhaseWholistic); err != nil {
		return s.View(), err
	}
	return s.recordWholistic(ctx, map[string]int{}, model.SkippedComment), nil
}

func (s *ReviewSession) recordWholistic(ctx context.Context, ratings map[string]int, comments string) model.View {
	paper, _ := s.CurrentPaper()
	s.data.WholisticEvaluations = append(s.data.WholisticEvaluations, model.WholisticEvaluation{
		PaperID:         paper.ID,
		PaperName:       paper.Name,
		Ratings:         ratings,
		OverallComments: comments,
		Timestamp:       s.opts.Clock(),
	})
	s.paperIndex++
	s.videoIndex = 0
	if s.paperIndex >= len(s.cfg.Papers) {
		s.phase = model.PhaseComplete
	}
	return s.afterTransition(ctx)
}

// PreviousVideo shows the previous clip of the method under review
func (s *ReviewSession) PreviousVideo() (model.View, error) {
	if err := s.requirePhase(model.PhaseWholistic); err != nil {
		return s.View(), err
	}
	if s.videoIndex > 0 {
		s.videoIndex--
	}
	v := s.View()
	notify(s.opts.Observer, v)
	return v, nil
}

// NextVideo shows the next clip of the method under review
func (s *ReviewSession) NextVideo() (model.View, error) {
	if err := s.requirePhase(model.PhaseWholistic); err != nil {
		return s.View(), err
	}
	if s.videoIndex < len(s.wholisticClips())-1 {
		s.videoIndex++
	}
	v := s.View()
	notify(s.opts.Observer, v)
	return v, nil
}

func (s *ReviewSession) requirePhase(p model.Phase) error {
	if s.phase == model.PhaseComplete {
		return ErrSessionComplete
	}
	if s.phase != p {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongPhase, s.phase, p)
	}
	return nil
}

func (s *ReviewSession) enterWholistic() {
	s.phase = model.PhaseWholistic
	s.paperIndex = 0
	s.videoIndex = 0
	if len(s.cfg.Papers) == 0 {
		s.phase = model.PhaseComplete
	}
}

// afterTransition persists and forwards the new state, finalizing the session
// when it has just reached complete.
func (s *ReviewSession) afterTransition(ctx context.Context) model.View {
	s.lastSave = s.opts.Clock()

	if s.phase == model.PhaseComplete {
		end := s.lastSave
		s.data.EndTime = &end
		s.opts.Bridge.Save(ctx, model.KeyReviewData, s.data)
		s.opts.Bridge.Clear(ctx, model.KeyReviewProgress)
	} else {
		s.opts.Bridge.Save(ctx, model.KeyReviewProgress, s.Snapshot())
	}
	s.opts.Bridge.Forward(s.Batch())

	v := s.View()
	notify(s.opts.Observer, v)
	return v
}

// Snapshot returns the resumable state
func (s *ReviewSession) Snapshot() model.ProgressSnapshot {
	return model.ProgressSnapshot{
		EvaluationData:             s.data,
		CurrentPhase:               s.phase,
		CurrentTaskIndex:           s.taskIndex,
		CurrentPaperIndex:          s.paperIndex,
		CurrentWholisticVideoIndex: s.videoIndex,
		TotalTasks:                 len(s.tasks),
		TaskOrder:                  TaskOrder(s.tasks),
		LastSaveTime:               s.lastSave,
	}
}

// Batch returns the answers collected so far in relay form
func (s *ReviewSession) Batch() model.ReviewBatch {
	return model.ReviewBatch{
		EvaluatorID:          s.data.EvaluatorID,
		Timestamp:            s.opts.Clock(),
		Phase:                s.phase,
		TotalTasks:           len(s.tasks),
		SegmentEvaluations:   s.data.SegmentEvaluations,
		WholisticEvaluations: s.data.WholisticEvaluations,
	}
}

// Summary computes the completion statistics. Skipped tasks count toward the
// total but not toward the completion rate.
func (s *ReviewSession) Summary() model.ReviewSummary {
	rated := 0
	for _, e := range s.data.SegmentEvaluations {
		if !e.Skipped() {
			rated++
		}
	}
	sum := model.ReviewSummary{
		SegmentEvaluations: len(s.data.SegmentEvaluations),
		PapersReviewed:     len(s.data.WholisticEvaluations),
		TotalQuestions:     len(s.tasks),
		CompletedSegments:  rated,
		SkippedSegments:    len(s.data.SegmentEvaluations) - rated,
	}
	// a resume can drop tasks whose evaluations were already recorded
	if total := max(len(s.tasks), len(s.data.SegmentEvaluations)); total > 0 {
		sum.CompletionRate = int(math.Round(float64(rated) / float64(total) * 100))
	}
	return sum
}

func (s *ReviewSession) wholisticClips() []string {
	return s.cfg.Clips(s.opts.WholisticClips)
}

// sectionPosition locates the current task within its run of same-section tasks
func (s *ReviewSession) sectionPosition() (section model.Section, index, count, question, total int) {
	start := 0
	for i := 0; i <= len(s.tasks); i++ {
		if i < len(s.tasks) && (i == start || s.tasks[i].Section.ID == s.tasks[start].Section.ID) {
			continue
		}
		if s.taskIndex >= start && s.taskIndex < i {
			section = s.tasks[start].Section
			index = count
			question = s.taskIndex - start + 1
			total = i - start
		}
		count++
		start = i
	}
	return section, index, count, question, total
}

// View returns the observable state for the rendering surface
func (s *ReviewSession) View() model.View {
	v := model.View{
		Flow:         model.FlowReview,
		EvaluatorID:  s.data.EvaluatorID,
		Phase:        s.phase,
		LastSaveTime: timePtr(s.lastSave),
	}

	switch s.phase {
	case model.PhaseSegment:
		total := len(s.tasks)
		v.Progress = model.Progress{Current: s.taskIndex, Total: total, Percentage: percentage(s.taskIndex, total)}
		task, ok := s.CurrentTask()
		if !ok {
			break
		}
		section, idx, count, q, inSection := s.sectionPosition()
		v.Progress.Text = fmt.Sprintf("Section %d/%d: %s - Question %d of %d", idx+1, count, section.Name, q, inSection)
		v.Segment = &model.SegmentView{
			TaskIndex:          s.taskIndex,
			PaperName:          task.Method.Name,
			PaperDescription:   task.Method.Description,
			SectionName:        task.Section.Name,
			SectionDescription: task.Section.Description,
			Question:           fmt.Sprintf("Rate the %s in this video clip", strings.ToLower(task.Section.Name)),
			FollowUpLabel:      followUpLabel,
			VideoPath:          model.MediaPath(s.opts.ClipBase, task.Method, task.Clip),
			StarLabels:         task.StarLabels,
		}

	case model.PhaseWholistic:
		total := len(s.cfg.Papers)
		v.Progress = model.Progress{
			Current:    s.paperIndex,
			Total:      total,
			Percentage: percentage(s.paperIndex, total),
			Text:       fmt.Sprintf("All %d questions completed!", len(s.tasks)),
		}
		paper, ok := s.CurrentPaper()
		if !ok {
			break
		}
		clips := s.wholisticClips()
		w := &model.WholisticView{
			PaperIndex:       s.paperIndex,
			TotalPapers:      total,
			PaperName:        paper.Name,
			PaperDescription: paper.Description,
			Videos:           clips,
			VideoIndex:       s.videoIndex,
			CanPrevious:      s.videoIndex > 0,
			CanNext:          s.videoIndex < len(clips)-1,
			Criteria:         s.cfg.WholisticCriteria,
			ProgressText:     fmt.Sprintf("Paper %d of %d", s.paperIndex+1, total),
		}
		if len(clips) > 0 {
			w.VideoPath = model.MediaPath(s.opts.ClipBase, paper, clips[s.videoIndex])
			w.VideoCounter = fmt.Sprintf("Video %d of %d", s.videoIndex+1, len(clips))
		}
		v.Wholistic = w

	case model.PhaseComplete:
		total := len(s.tasks)
		v.Progress = model.Progress{
			Current:    total,
			Total:      total,
			Percentage: 100,
			Text:       fmt.Sprintf("All %d questions completed!", total),
		}
		summary := s.Summary()
		v.ReviewSummary = &summary
	}
	return v
}
