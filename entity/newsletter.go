package entity

import (
	"fmt"
	"time"

	"newsletter/pkg/goutil"
)

type NewsletterStatus uint32

const (
	NewsletterStatusUnknown NewsletterStatus = iota
	NewsletterStatusDraft
	NewsletterStatusSending
	NewsletterStatusSent
	NewsletterStatusPartiallyFailed
	NewsletterStatusRetrying
	NewsletterStatusFailed
)

var NewsletterStatuses = map[NewsletterStatus]string{
	NewsletterStatusDraft:           "draft",
	NewsletterStatusSending:         "sending",
	NewsletterStatusSent:            "sent",
	NewsletterStatusPartiallyFailed: "partially_failed",
	NewsletterStatusRetrying:        "retrying",
	NewsletterStatusFailed:          "failed",
}

func (s NewsletterStatus) String() string {
	if name, ok := NewsletterStatuses[s]; ok {
		return name
	}
	return "unknown"
}

type RecoveryAction string

const (
	RecoveryActionResetRetry   RecoveryAction = "reset_retry"
	RecoveryActionMarkComplete RecoveryAction = "mark_complete"
	RecoveryActionResetToDraft RecoveryAction = "reset_to_draft"
)

var RecoveryActions = []RecoveryAction{
	RecoveryActionResetRetry,
	RecoveryActionMarkComplete,
	RecoveryActionResetToDraft,
}

// statuses each recovery action may be applied from
var recoverableFrom = map[RecoveryAction][]NewsletterStatus{
	RecoveryActionResetRetry: {
		NewsletterStatusRetrying,
	},
	RecoveryActionMarkComplete: {
		NewsletterStatusSending,
		NewsletterStatusPartiallyFailed,
		NewsletterStatusRetrying,
	},
	RecoveryActionResetToDraft: {
		NewsletterStatusSending,
		NewsletterStatusPartiallyFailed,
		NewsletterStatusRetrying,
		NewsletterStatusFailed,
	},
}

// AvailableActions lists the recovery actions valid for status, in a stable order.
func AvailableActions(status NewsletterStatus) []RecoveryAction {
	actions := make([]RecoveryAction, 0)
	for _, action := range RecoveryActions {
		if action.allowedFrom(status) {
			actions = append(actions, action)
		}
	}
	return actions
}

func (a RecoveryAction) allowedFrom(status NewsletterStatus) bool {
	for _, s := range recoverableFrom[a] {
		if s == status {
			return true
		}
	}
	return false
}

type ChunkResult struct {
	ChunkIndex  int    `json:"chunk_index"`
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
	CompletedAt uint64 `json:"completed_at"`
}

type RetryResult struct {
	Stage           int    `json:"stage"`
	Attempted       int    `json:"attempted"`
	Succeeded       int    `json:"succeeded"`
	FailedRemaining int    `json:"failed_remaining"`
	CompletedAt     uint64 `json:"completed_at"`
}

// SenderPreferences survive a reset to draft.
type SenderPreferences struct {
	SenderName      *string  `json:"sender_name,omitempty"`
	SenderEmail     *string  `json:"sender_email,omitempty"`
	ReplyTo         *string  `json:"reply_to,omitempty"`
	UnsubscribeLink *string  `json:"unsubscribe_link,omitempty"`
	TestRecipients  []string `json:"test_recipients,omitempty"`
}

func (p *SenderPreferences) GetSenderName() string {
	if p != nil && p.SenderName != nil {
		return *p.SenderName
	}
	return ""
}

func (p *SenderPreferences) GetSenderEmail() string {
	if p != nil && p.SenderEmail != nil {
		return *p.SenderEmail
	}
	return ""
}

func (p *SenderPreferences) GetReplyTo() string {
	if p != nil && p.ReplyTo != nil {
		return *p.ReplyTo
	}
	return ""
}

func (p *SenderPreferences) GetTestRecipients() []string {
	if p != nil {
		return p.TestRecipients
	}
	return nil
}

// SendSettings is the send progress record persisted with the newsletter.
// FailedEmails only ever holds the failures of the latest wave.
type SendSettings struct {
	Preferences *SenderPreferences `json:"preferences,omitempty"`

	TotalChunks     int            `json:"total_chunks"`
	ChunkSize       int            `json:"chunk_size"`
	TotalSent       int            `json:"total_sent"`
	TotalFailed     int            `json:"total_failed"`
	CompletedChunks []*ChunkResult `json:"completed_chunks"`
	FailedEmails    []string       `json:"failed_emails"`

	RetryInProgress   bool           `json:"retry_in_progress"`
	CurrentRetryStage int            `json:"current_retry_stage"`
	RetryResults      []*RetryResult `json:"retry_results"`

	StartedAt            *uint64 `json:"started_at,omitempty"`
	CompletedAt          *uint64 `json:"completed_at,omitempty"`
	RetryStartedAt       *uint64 `json:"retry_started_at,omitempty"`
	RetryCompletedAt     *uint64 `json:"retry_completed_at,omitempty"`
	LastChunkCompletedAt *uint64 `json:"last_chunk_completed_at,omitempty"`

	RecoveredAt    *uint64         `json:"recovered_at,omitempty"`
	RecoveryNote   *string         `json:"recovery_note,omitempty"`
	RecoveryAction *RecoveryAction `json:"recovery_action,omitempty"`
}

func (s *SendSettings) GetPreferences() *SenderPreferences {
	if s != nil {
		return s.Preferences
	}
	return nil
}

func (s *SendSettings) GetFailedEmails() []string {
	if s != nil {
		return s.FailedEmails
	}
	return nil
}

func (s *SendSettings) GetCurrentRetryStage() int {
	if s != nil {
		return s.CurrentRetryStage
	}
	return 0
}

func (s *SendSettings) IsRetryInProgress() bool {
	return s != nil && s.RetryInProgress
}

// HasProgress reports whether a send was ever started on these settings.
func (s *SendSettings) HasProgress() bool {
	return s != nil && s.StartedAt != nil
}

func (s *SendSettings) chunkCompleted(chunkIndex int) bool {
	for _, c := range s.CompletedChunks {
		if c.ChunkIndex == chunkIndex {
			return true
		}
	}
	return false
}

func (s *SendSettings) stageRecorded(stage int) bool {
	for _, r := range s.RetryResults {
		if r.Stage == stage {
			return true
		}
	}
	return false
}

// LastActivity is the latest timestamp recorded by any transition.
func (s *SendSettings) LastActivity() uint64 {
	var last uint64
	if s == nil {
		return last
	}
	for _, ts := range []*uint64{
		s.StartedAt,
		s.LastChunkCompletedAt,
		s.CompletedAt,
		s.RetryStartedAt,
		s.RetryCompletedAt,
		s.RecoveredAt,
	} {
		if ts != nil && *ts > last {
			last = *ts
		}
	}
	return last
}

// resetProgress wipes every sending and retry field, keeping the preferences.
func (s *SendSettings) resetProgress() {
	*s = SendSettings{
		Preferences:     s.Preferences,
		CompletedChunks: make([]*ChunkResult, 0),
		FailedEmails:    make([]string, 0),
		RetryResults:    make([]*RetryResult, 0),
	}
}

type Newsletter struct {
	ID             *uint64          `json:"id,omitempty"`
	Subject        *string          `json:"subject,omitempty"`
	Content        *string          `json:"content,omitempty"`
	Status         NewsletterStatus `json:"status,omitempty"`
	RecipientCount *uint64          `json:"recipient_count,omitempty"`
	Settings       *SendSettings    `json:"settings,omitempty"`
	SentAt         *uint64          `json:"sent_at,omitempty"`
	Version        *uint64          `json:"version,omitempty"`
	CreateTime     *uint64          `json:"create_time,omitempty"`
	UpdateTime     *uint64          `json:"update_time,omitempty"`
}

func (e *Newsletter) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Newsletter) GetSubject() string {
	if e != nil && e.Subject != nil {
		return *e.Subject
	}
	return ""
}

func (e *Newsletter) GetContent() string {
	if e != nil && e.Content != nil {
		return *e.Content
	}
	return ""
}

func (e *Newsletter) GetStatus() NewsletterStatus {
	if e != nil {
		return e.Status
	}
	return NewsletterStatusUnknown
}

func (e *Newsletter) GetRecipientCount() uint64 {
	if e != nil && e.RecipientCount != nil {
		return *e.RecipientCount
	}
	return 0
}

func (e *Newsletter) GetVersion() uint64 {
	if e != nil && e.Version != nil {
		return *e.Version
	}
	return 0
}

func (e *Newsletter) GetSettings() *SendSettings {
	if e != nil {
		return e.Settings
	}
	return nil
}

func (e *Newsletter) settings() *SendSettings {
	if e.Settings == nil {
		e.Settings = new(SendSettings)
		e.Settings.resetProgress()
	}
	return e.Settings
}

func (e *Newsletter) transitionErr(op string) error {
	return fmt.Errorf("%w: cannot %s newsletter %d in status %s", ErrInvalidStateTransition, op, e.GetID(), e.GetStatus())
}

type SendPlan struct {
	RecipientCount int
	ChunkSize      int
	TotalChunks    int
}

func (p *SendPlan) validate() error {
	if p == nil {
		return fmt.Errorf("%w: missing send plan", ErrInvalidConfiguration)
	}
	if p.RecipientCount <= 0 {
		return ErrNoRecipients
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, p.ChunkSize)
	}
	if want := (p.RecipientCount + p.ChunkSize - 1) / p.ChunkSize; p.TotalChunks != want {
		return fmt.Errorf("%w: expect %d chunks for %d recipients, got %d", ErrInvalidConfiguration, want, p.RecipientCount, p.TotalChunks)
	}
	return nil
}

// CanBeginSend reports whether a fresh send may start from the current status.
func (e *Newsletter) CanBeginSend() error {
	switch e.GetStatus() {
	case NewsletterStatusDraft, NewsletterStatusPartiallyFailed, NewsletterStatusSending:
		return nil
	}
	return e.transitionErr("begin send")
}

// BeginSend starts a fresh send. Resending from sending or partially_failed
// discards the previous progress record.
func (e *Newsletter) BeginSend(plan *SendPlan, now time.Time) error {
	if err := plan.validate(); err != nil {
		return err
	}

	if err := e.CanBeginSend(); err != nil {
		return err
	}

	s := e.settings()
	s.resetProgress()
	s.TotalChunks = plan.TotalChunks
	s.ChunkSize = plan.ChunkSize
	s.StartedAt = goutil.Uint64(goutil.Unix(now))

	e.RecipientCount = goutil.Uint64(uint64(plan.RecipientCount))
	e.Status = NewsletterStatusSending

	return nil
}

// RecordChunkResult returns false when the chunk was already recorded.
func (e *Newsletter) RecordChunkResult(chunkIndex int, succeeded, failed []string, now time.Time) (bool, error) {
	if e.GetStatus() != NewsletterStatusSending {
		return false, e.transitionErr("record chunk result for")
	}

	s := e.settings()
	if chunkIndex < 0 || chunkIndex >= s.TotalChunks {
		return false, fmt.Errorf("%w: chunk index %d outside plan of %d chunks", ErrInvalidConfiguration, chunkIndex, s.TotalChunks)
	}
	if s.chunkCompleted(chunkIndex) {
		return false, nil
	}
	if want, got := e.plannedChunkSize(chunkIndex), len(succeeded)+len(failed); got != want {
		return false, fmt.Errorf("%w: chunk %d reported %d recipients, planned %d", ErrInvalidConfiguration, chunkIndex, got, want)
	}

	ts := goutil.Unix(now)
	s.CompletedChunks = append(s.CompletedChunks, &ChunkResult{
		ChunkIndex:  chunkIndex,
		SentCount:   len(succeeded),
		FailedCount: len(failed),
		CompletedAt: ts,
	})
	s.TotalSent += len(succeeded)
	s.TotalFailed += len(failed)
	s.FailedEmails = append(s.FailedEmails, failed...)
	s.LastChunkCompletedAt = goutil.Uint64(ts)

	return true, nil
}

// plannedChunkSize is ChunkSize for every chunk but the last, which takes
// the remainder.
func (e *Newsletter) plannedChunkSize(chunkIndex int) int {
	s := e.settings()
	if chunkIndex < s.TotalChunks-1 {
		return s.ChunkSize
	}
	return int(e.GetRecipientCount()) - s.ChunkSize*(s.TotalChunks-1)
}

func (e *Newsletter) FinalizeSend(now time.Time) error {
	if e.GetStatus() != NewsletterStatusSending {
		return e.transitionErr("finalize send of")
	}

	s := e.settings()
	if len(s.CompletedChunks) != s.TotalChunks {
		return fmt.Errorf("%w: %d of %d chunks reported", ErrChunksOutstanding, len(s.CompletedChunks), s.TotalChunks)
	}

	ts := goutil.Unix(now)
	s.CompletedAt = goutil.Uint64(ts)

	if s.TotalFailed == 0 {
		e.markSent(ts)
	} else {
		e.Status = NewsletterStatusPartiallyFailed
	}

	return nil
}

func (e *Newsletter) BeginRetry(stage int, now time.Time) error {
	if e.GetStatus() != NewsletterStatusPartiallyFailed {
		return e.transitionErr("begin retry of")
	}

	s := e.settings()
	if want := s.CurrentRetryStage + 1; stage != want {
		return fmt.Errorf("%w: retry stage must be %d, got %d", ErrInvalidStateTransition, want, stage)
	}

	s.CurrentRetryStage = stage
	s.RetryInProgress = true
	s.RetryStartedAt = goutil.Uint64(goutil.Unix(now))
	e.Status = NewsletterStatusRetrying

	return nil
}

// RecordRetryResult records one whole retry wave. stillFailed replaces the
// previous failures.
func (e *Newsletter) RecordRetryResult(stage int, succeeded, stillFailed []string, now time.Time) error {
	if e.GetStatus() != NewsletterStatusRetrying {
		return e.transitionErr("record retry result for")
	}

	s := e.settings()
	if stage != s.CurrentRetryStage {
		return fmt.Errorf("%w: retry stage %d is not the current stage %d", ErrInvalidStateTransition, stage, s.CurrentRetryStage)
	}
	if s.stageRecorded(stage) {
		return fmt.Errorf("%w: retry stage %d already recorded", ErrInvalidStateTransition, stage)
	}

	moved := len(succeeded)
	if moved > s.TotalFailed {
		moved = s.TotalFailed
	}
	s.TotalFailed -= moved
	s.TotalSent += moved

	s.FailedEmails = append(make([]string, 0, len(stillFailed)), stillFailed...)
	s.RetryResults = append(s.RetryResults, &RetryResult{
		Stage:           stage,
		Attempted:       len(succeeded) + len(stillFailed),
		Succeeded:       len(succeeded),
		FailedRemaining: len(stillFailed),
		CompletedAt:     goutil.Unix(now),
	})

	return nil
}

func (e *Newsletter) FinalizeRetry(now time.Time) error {
	if e.GetStatus() != NewsletterStatusRetrying {
		return e.transitionErr("finalize retry of")
	}

	s := e.settings()
	if !s.stageRecorded(s.CurrentRetryStage) {
		return fmt.Errorf("%w: retry stage %d has no result", ErrInvalidStateTransition, s.CurrentRetryStage)
	}

	ts := goutil.Unix(now)
	s.RetryInProgress = false
	s.RetryCompletedAt = goutil.Uint64(ts)

	if len(s.FailedEmails) == 0 {
		e.markSent(ts)
	} else {
		e.Status = NewsletterStatusPartiallyFailed
	}

	return nil
}

// Recover applies an operator recovery action.
func (e *Newsletter) Recover(action RecoveryAction, note string, now time.Time) error {
	if !action.allowedFrom(e.GetStatus()) {
		return fmt.Errorf("%w: %q not allowed for newsletter %d in status %s", ErrInvalidRecoveryAction, action, e.GetID(), e.GetStatus())
	}

	ts := goutil.Unix(now)
	s := e.settings()

	switch action {
	case RecoveryActionResetRetry:
		s.RetryInProgress = false
		s.CurrentRetryStage = 0
		s.RetryResults = make([]*RetryResult, 0)
		e.Status = NewsletterStatusPartiallyFailed
	case RecoveryActionMarkComplete:
		s.RetryInProgress = false
		e.markSent(ts)
	case RecoveryActionResetToDraft:
		s.resetProgress()
		e.RecipientCount = goutil.Uint64(0)
		e.Status = NewsletterStatusDraft
	}

	s.RecoveredAt = goutil.Uint64(ts)
	s.RecoveryNote = goutil.String(note)
	s.RecoveryAction = &action

	return nil
}

func (e *Newsletter) markSent(ts uint64) {
	e.Status = NewsletterStatusSent
	if e.SentAt == nil {
		e.SentAt = goutil.Uint64(ts)
	}
}
