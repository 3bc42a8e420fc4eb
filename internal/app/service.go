// Package app orchestrates annotation sessions: it validates decisions,
// reconciles pointer objects, appends durable log records, advances progress
// and exposes the whole flow over HTTP. One decision is processed start to
// finish before the next begins; the only synchronization primitive is the
// per-pair single-flight guard against double submission.
package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tripletfilter/api/internal/annotation"
	"tripletfilter/api/internal/auth"
	"tripletfilter/api/internal/config"
	"tripletfilter/api/internal/feed"
	"tripletfilter/api/internal/logstore"
	"tripletfilter/api/internal/objstore"
	"tripletfilter/api/internal/progress"
	"tripletfilter/api/internal/reconcile"
	"tripletfilter/api/internal/search"
)

// Session is an authenticated annotator session as returned to clients.
type Session struct {
	Token        string
	RefreshToken string
	Name         string
	Canonical    string
	Categories   []string
	JTI          string
	ExpiresAt    time.Time
}

// SessionContext is the explicit per-request annotator context threaded
// through every operation; there is no process-global "current annotator".
type SessionContext struct {
	Name       string
	Canonical  string
	Categories []string
}

// SaveInput is one submitted decision for a pair.
type SaveInput struct {
	PairKey string            `json:"pairKey"`
	Hypo    annotation.Status `json:"hypo"`
	Adv     annotation.Status `json:"adv"`
}

// SaveResult reports a committed (or deduplicated) save.
type SaveResult struct {
	Saved     bool `json:"saved"`
	Duplicate bool `json:"duplicate"`
	NextIndex int  `json:"nextIndex"`
}

// Overview is the per-annotator progress summary for one category.
type Overview struct {
	Category  string `json:"category"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Pending   int    `json:"pending"`
	Position  int    `json:"position"`
}

// SideState is the saved decision state for one side of a pair.
type SideState struct {
	Status   string `json:"status"`
	CopiedID string `json:"copiedId,omitempty"`
}

// PairDetail is one pair plus the annotator's saved state for it.
type PairDetail struct {
	Index    int       `json:"index"`
	Pair     feed.Pair `json:"pair"`
	PairKey  string    `json:"pairKey"`
	Hypo     SideState `json:"hypo"`
	Adv      SideState `json:"adv"`
	Complete bool      `json:"complete"`
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, identity auth.Identity, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (auth.Identity, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg        config.Config
	categories config.Categories
	store      objstore.Store
	logs       *logstore.Store
	feeds      *feed.Cache
	folders    *objstore.FolderIndex
	reconciler *reconcile.Reconciler
	progress   *progress.Tracker
	searcher   *search.Service
	verifier   auth.Verifier
	sessions   sessionStore
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	inflight  map[string]struct{}
	lastSaves map[string]lastSave
}

// lastSave remembers an annotator's most recent successful save so an
// unchanged resubmission can be answered without touching the store.
type lastSave struct {
	token string
	next  int
}

// Deps carries the collaborators the service is wired with.
type Deps struct {
	Categories config.Categories
	Store      objstore.Store
	Logs       *logstore.Store
	Feeds      *feed.Cache
	Folders    *objstore.FolderIndex
	Reconciler *reconcile.Reconciler
	Progress   *progress.Tracker
	Search     *search.Service
	Verifier   auth.Verifier
	Sessions   sessionStore
	Logger     *zap.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		categories: deps.Categories,
		store:      deps.Store,
		logs:       deps.Logs,
		feeds:      deps.Feeds,
		folders:    deps.Folders,
		reconciler: deps.Reconciler,
		progress:   deps.Progress,
		searcher:   deps.Search,
		verifier:   deps.Verifier,
		sessions:   deps.Sessions,
		logger:     logger,
		now:        time.Now,
		inflight:   make(map[string]struct{}),
		lastSaves:  make(map[string]lastSave),
	}
}

// Ping reports backing-service reachability for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, name, secret string) (Session, error) {
	identity, err := s.verifier.Verify(ctx, name, secret)
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, identity)
}

// Refresh rotates a refresh token into a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	identity, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		s.logger.Warn("revoke rotated refresh token", zap.Error(err))
	}
	return s.openSession(ctx, identity)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) openSession(ctx context.Context, identity auth.Identity) (Session, error) {
	expiresAt := s.now().Add(s.cfg.AccessTTL)
	claims := auth.Claims{
		Sub:        identity.Canonical,
		Name:       identity.Name,
		Categories: identity.Categories,
		JTI:        auth.NewTokenID("jti"),
		Exp:        expiresAt.Unix(),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken := auth.NewTokenID("rt")
	refreshExpiry := s.now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), identity, refreshExpiry); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		Name:         identity.Name,
		Canonical:    identity.Canonical,
		Categories:   identity.Categories,
		JTI:          claims.JTI,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and returns its context.
func (s *Service) SessionFromToken(token string) (SessionContext, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return SessionContext{}, err
	}
	return SessionContext{
		Name:       claims.Name,
		Canonical:  claims.Sub,
		Categories: claims.Categories,
	}, nil
}

func (s *Service) category(sctx SessionContext, name string) (config.Category, error) {
	cat, ok := s.categories[name]
	if !ok {
		return config.Category{}, domainError(http.StatusNotFound, "UNKNOWN_CATEGORY", "Unknown category", nil)
	}
	allowed := false
	for _, c := range sctx.Categories {
		if c == name {
			allowed = true
			break
		}
	}
	if !allowed {
		return config.Category{}, domainError(http.StatusForbidden, "CATEGORY_FORBIDDEN", "Category not assigned to this annotator", nil)
	}
	return cat, nil
}

// completion derives the annotator's completion index from both side logs.
func (s *Service) completion(ctx context.Context, cat config.Category, sctx SessionContext) (annotation.Completion, error) {
	hypoLines, err := s.logs.Read(ctx, cat.LogHypo)
	if err != nil {
		return annotation.Completion{}, err
	}
	advLines, err := s.logs.Read(ctx, cat.LogAdv)
	if err != nil {
		return annotation.Completion{}, err
	}
	return annotation.BuildCompletion(
		annotation.LatestByAnnotator(hypoLines, sctx.Name),
		annotation.LatestByAnnotator(advLines, sctx.Name),
	), nil
}

// Overview returns the progress summary and the effective starting position
// for one category.
func (s *Service) Overview(ctx context.Context, sctx SessionContext, category string) (Overview, error) {
	cat, err := s.category(sctx, category)
	if err != nil {
		return Overview{}, err
	}
	pairs, err := s.feeds.Load(ctx, cat.FeedID)
	if err != nil {
		return Overview{}, err
	}
	completion, err := s.completion(ctx, cat, sctx)
	if err != nil {
		return Overview{}, err
	}

	completed := 0
	for _, pair := range pairs {
		if completion.Complete(pair.PairKey()) {
			completed++
		}
	}

	hint := s.progress.LoadHint(ctx, category, sctx.Name)
	return Overview{
		Category:  category,
		Total:     len(pairs),
		Completed: completed,
		Pending:   len(pairs) - completed,
		Position:  progress.StartPosition(hint, pairs, completion),
	}, nil
}

// PairState returns one pair's metadata and the annotator's saved state.
func (s *Service) PairState(ctx context.Context, sctx SessionContext, category string, index int) (PairDetail, error) {
	cat, err := s.category(sctx, category)
	if err != nil {
		return PairDetail{}, err
	}
	pairs, err := s.feeds.Load(ctx, cat.FeedID)
	if err != nil {
		return PairDetail{}, err
	}
	if len(pairs) == 0 {
		return PairDetail{}, domainError(http.StatusNotFound, "EMPTY_FEED", "Category has no pairs", nil)
	}
	index = clamp(index, 0, len(pairs)-1)
	pair := pairs[index]
	pk := pair.PairKey()

	completion, err := s.completion(ctx, cat, sctx)
	if err != nil {
		return PairDetail{}, err
	}

	detail := PairDetail{
		Index:    index,
		Pair:     pair,
		PairKey:  pk,
		Complete: completion.Complete(pk),
	}
	if rec, ok := completion.Hypo[pk]; ok {
		detail.Hypo = SideState{Status: string(rec.Status), CopiedID: rec.CopiedID}
	}
	if rec, ok := completion.Adv[pk]; ok {
		detail.Adv = SideState{Status: string(rec.Status), CopiedID: rec.CopiedID}
	}
	return detail, nil
}

// Navigate records explicit navigation by updating the hint immediately so
// backward movement is honored on the next load.
func (s *Service) Navigate(ctx context.Context, sctx SessionContext, category string, index int) (int, error) {
	cat, err := s.category(sctx, category)
	if err != nil {
		return 0, err
	}
	pairs, err := s.feeds.Load(ctx, cat.FeedID)
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, nil
	}
	index = clamp(index, 0, len(pairs)-1)
	s.progress.SaveHint(ctx, category, sctx.Name, index)
	return index, nil
}

// SaveDecision runs one decision through the save state machine:
// Validating, Reconciling, Appending, Advancing. Terminal on success or
// reported failure; a failed attempt restarts from scratch on resubmission.
func (s *Service) SaveDecision(ctx context.Context, sctx SessionContext, category string, in SaveInput) (SaveResult, error) {
	cat, err := s.category(sctx, category)
	if err != nil {
		return SaveResult{}, err
	}

	// Validating: no store mutation happens on an undecided side.
	if !annotation.ValidStatus(in.Hypo) || !annotation.ValidStatus(in.Adv) {
		return SaveResult{}, domainError(http.StatusUnprocessableEntity,
			"INCOMPLETE_DECISION", ErrIncompleteDecision.Error(), nil)
	}

	flightKey := sctx.Canonical + "|" + in.PairKey
	s.mu.Lock()
	if _, busy := s.inflight[flightKey]; busy {
		s.mu.Unlock()
		return SaveResult{}, domainError(http.StatusConflict,
			"SAVE_IN_FLIGHT", ErrSaveInFlight.Error(), nil)
	}
	s.inflight[flightKey] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, flightKey)
		s.mu.Unlock()
	}()

	// Idempotent replay: an unchanged resubmission is a correct no-op and
	// skips all remote work.
	token := saveToken(in.PairKey, in.Hypo, in.Adv, sctx.Canonical)
	s.mu.Lock()
	prev, seen := s.lastSaves[sctx.Canonical]
	s.mu.Unlock()
	if seen && prev.token == token {
		return SaveResult{Saved: true, Duplicate: true, NextIndex: prev.next}, nil
	}

	pairs, err := s.feeds.Load(ctx, cat.FeedID)
	if err != nil {
		return SaveResult{}, err
	}
	pairIndex := -1
	for i, pair := range pairs {
		if pair.PairKey() == in.PairKey {
			pairIndex = i
			break
		}
	}
	if pairIndex < 0 {
		return SaveResult{}, domainError(http.StatusNotFound, "UNKNOWN_PAIR", "Pair not in the metadata feed", nil)
	}
	pair := pairs[pairIndex]

	completion, err := s.completion(ctx, cat, sctx)
	if err != nil {
		return SaveResult{}, err
	}

	prevHypo := completion.Hypo[in.PairKey]
	prevAdv := completion.Adv[in.PairKey]

	srcHypoID, _, err := s.folders.Resolve(ctx, cat.SrcHypo, pair.HypoID)
	if err != nil {
		return SaveResult{}, &ReconciliationFailure{Side: annotation.SideHypothesis, Err: err}
	}
	srcAdvID, _, err := s.folders.Resolve(ctx, cat.SrcAdv, pair.AdversarialID)
	if err != nil {
		return SaveResult{}, &ReconciliationFailure{Side: annotation.SideAdversarial, Err: err}
	}

	// Reconciling: pointer objects first, so the log never references a
	// pointer that was never created.
	hypoPointer, err := s.reconciler.Reconcile(ctx, reconcile.Input{
		Name:           pair.HypoID,
		Previous:       prevHypo.Status,
		Next:           in.Hypo,
		SourceObjectID: srcHypoID,
		DestFolderID:   cat.DstHypo,
		KnownPointerID: prevHypo.CopiedID,
	})
	if err != nil {
		return SaveResult{}, &ReconciliationFailure{Side: annotation.SideHypothesis, Err: err}
	}
	advPointer, err := s.reconciler.Reconcile(ctx, reconcile.Input{
		Name:           pair.AdversarialID,
		Previous:       prevAdv.Status,
		Next:           in.Adv,
		SourceObjectID: srcAdvID,
		DestFolderID:   cat.DstAdv,
		KnownPointerID: prevAdv.CopiedID,
	})
	if err != nil {
		return SaveResult{}, &ReconciliationFailure{Side: annotation.SideAdversarial, Err: err}
	}

	decidedAt := s.now().Unix()
	hypoRecord := annotation.Record{
		PairKey:   in.PairKey,
		Annotator: sctx.Name,
		Side:      annotation.SideHypothesis,
		Status:    in.Hypo,
		DecidedAt: decidedAt,
		CopiedID:  hypoPointer,
		Meta:      pair.Raw,
	}
	advRecord := annotation.Record{
		PairKey:   in.PairKey,
		Annotator: sctx.Name,
		Side:      annotation.SideAdversarial,
		Status:    in.Adv,
		DecidedAt: decidedAt,
		CopiedID:  advPointer,
		Meta:      pair.Raw,
	}

	// Appending: hypothesis side first. A failure on the second side leaves
	// the first side's record durable; the pair self-heals on the next save.
	if err := s.appendRecord(ctx, cat.LogHypo, hypoRecord); err != nil {
		return SaveResult{}, &AppendFailure{Side: annotation.SideHypothesis, FileID: cat.LogHypo, Err: err}
	}
	if err := s.appendRecord(ctx, cat.LogAdv, advRecord); err != nil {
		return SaveResult{}, &AppendFailure{Side: annotation.SideAdversarial, FileID: cat.LogAdv, Err: err}
	}

	// Advancing: derive the next position from the updated index and persist
	// the hint.
	completion.Hypo[in.PairKey] = hypoRecord
	completion.Adv[in.PairKey] = advRecord
	next := progress.FirstUndecided(pairs, completion)
	s.progress.SaveHint(ctx, category, sctx.Name, next)

	s.mu.Lock()
	s.lastSaves[sctx.Canonical] = lastSave{token: token, next: next}
	s.mu.Unlock()

	s.indexDecisions(ctx, category, pair, hypoRecord, advRecord)

	s.logger.Info("decision saved",
		zap.String("category", category),
		zap.String("pair", in.PairKey),
		zap.String("annotator", sctx.Canonical),
		zap.String("hypo", string(in.Hypo)),
		zap.String("adv", string(in.Adv)))

	return SaveResult{Saved: true, NextIndex: next}, nil
}

func (s *Service) appendRecord(ctx context.Context, fileID string, rec annotation.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return err
	}
	return s.logs.Append(ctx, fileID, []string{line})
}

// indexDecisions feeds the search service best-effort; search availability
// never gates a save.
func (s *Service) indexDecisions(ctx context.Context, category string, pair feed.Pair, records ...annotation.Record) {
	if s.searcher == nil {
		return
	}
	docs := make([]search.DecisionDoc, 0, len(records))
	for _, rec := range records {
		docs = append(docs, search.DecisionDoc{
			ID:        fmt.Sprintf("%s|%s|%s|%d", rec.PairKey, rec.Side, rec.CanonicalAnnotator(), rec.DecidedAt),
			Category:  category,
			PairKey:   rec.PairKey,
			Side:      string(rec.Side),
			Status:    string(rec.Status),
			Annotator: rec.CanonicalAnnotator(),
			DecidedAt: rec.DecidedAt,
			Text:      pair.Text,
		})
	}
	if err := s.searcher.IndexDecisions(ctx, docs); err != nil {
		s.logger.Warn("search indexing failed", zap.Error(err))
	}
}

// SearchDecisions queries the decision index scoped to the annotator.
func (s *Service) SearchDecisions(ctx context.Context, sctx SessionContext, q search.Query) ([]search.DecisionDoc, error) {
	if s.searcher == nil {
		return nil, nil
	}
	q.Annotator = sctx.Canonical
	return s.searcher.Search(ctx, q)
}

func saveToken(pairKey string, hypo, adv annotation.Status, canonical string) string {
	payload, _ := json.Marshal(map[string]string{
		"pk":  pairKey,
		"h":   string(hypo),
		"a":   string(adv),
		"who": canonical,
	})
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
