package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"poi-tiering/internal/domain"
	"poi-tiering/internal/models"
	errs "poi-tiering/pkg/errors"
)

// MemStore is an in-memory domain.Repository and domain.UnitOfWorkFactory.
// Writes made through a unit of work are staged and only become visible
// on Commit. LockPOICtx holds a per-row lock until the unit of work ends,
// so concurrent classifications of one POI serialise as they do on MySQL.
type MemStore struct {
	mu      sync.Mutex
	pois    map[int64]models.POI
	history []models.POIScoreHistory
	sources map[string]models.POIDataSource
	runs    map[int64]models.DiscoveryRun
	spend   map[string]float64
	nextID  int64
	nextRun int64
	locks   map[int64]chan struct{}

	// FailOn injects an error for an operation on a POI id, e.g.
	// FailOn["UpdatePOIClassification"][2].
	FailOn map[string]map[int64]error

	Commits   int
	Rollbacks int
}

func NewMemStore() *MemStore {
	return &MemStore{
		pois:    make(map[int64]models.POI),
		sources: make(map[string]models.POIDataSource),
		runs:    make(map[int64]models.DiscoveryRun),
		spend:   make(map[string]float64),
		locks:   make(map[int64]chan struct{}),
		FailOn:  make(map[string]map[int64]error),
	}
}

var (
	_ domain.Repository        = (*MemStore)(nil)
	_ domain.UnitOfWorkFactory = (*MemStore)(nil)
)

// Fail makes op fail for the POI with the given id.
func (s *MemStore) Fail(op string, id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn[op] == nil {
		s.FailOn[op] = make(map[int64]error)
	}
	s.FailOn[op][id] = err
}

func (s *MemStore) failure(op string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FailOn[op][id]
}

// Seed stores p directly, assigning an id when p.ID is zero.
func (s *MemStore) Seed(p models.POI) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextID++
		p.ID = s.nextID
	} else if p.ID > s.nextID {
		s.nextID = p.ID
	}
	s.pois[p.ID] = p
	return p.ID
}

// POI returns the committed state of a POI.
func (s *MemStore) POI(id int64) (models.POI, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pois[id]
	return p, ok
}

func (s *MemStore) POICount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pois)
}

// History returns every committed history row for poiID, oldest first.
func (s *MemStore) History(poiID int64) []models.POIScoreHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.POIScoreHistory
	for _, h := range s.history {
		if h.POIID == poiID {
			out = append(out, h)
		}
	}
	return out
}

func (s *MemStore) DataSource(poiID int64, source string) (models.POIDataSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.sources[dsKey(poiID, source)]
	return ds, ok
}

func dsKey(poiID int64, source string) string { return fmt.Sprintf("%d/%s", poiID, source) }

func (s *MemStore) lock(ctx context.Context, id int64) error {
	s.mu.Lock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	s.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errs.NewDB("memstore.LockPOI", "lock wait", ctx.Err())
	}
}

func (s *MemStore) unlock(id int64) {
	s.mu.Lock()
	ch := s.locks[id]
	s.mu.Unlock()
	<-ch
}

// Repository reads

func (s *MemStore) GetPOIByIDCtx(_ context.Context, id int64) (*models.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pois[id]
	if !ok {
		return nil, errs.NewDB("memstore.GetPOIByID", fmt.Sprintf("poi %d", id), errs.ErrNotFound)
	}
	return &p, nil
}

func (s *MemStore) GetPOIByExternalIDCtx(_ context.Context, externalID string) (*models.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byExternalLocked(externalID), nil
}

func (s *MemStore) byExternalLocked(externalID string) *models.POI {
	for _, p := range s.pois {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			cp := p
			return &cp
		}
	}
	return nil
}

func (s *MemStore) ListPOIsDueForUpdateCtx(_ context.Context, tier models.Tier, now time.Time, limit int) ([]models.POI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.POI
	for _, p := range s.pois {
		if p.Active && p.Tier == tier && (p.NextUpdateAt == nil || !p.NextUpdateAt.After(now)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextUpdateAt, out[j].NextUpdateAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		}
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) CountPOIsByTierCtx(context.Context) ([]models.TierCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.Tier]int64)
	for _, p := range s.pois {
		if p.Active {
			counts[p.Tier]++
		}
	}
	var out []models.TierCount
	for t := models.Tier1; t <= models.Tier4; t++ {
		if c, ok := counts[t]; ok {
			out = append(out, models.TierCount{Tier: t, Count: c})
		}
	}
	return out, nil
}

func (s *MemStore) ListDataSourcesCtx(_ context.Context, poiID int64) ([]models.POIDataSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.POIDataSource
	for _, ds := range s.sources {
		if ds.POIID == poiID {
			out = append(out, ds)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName < out[j].SourceName })
	return out, nil
}

func (s *MemStore) ListScoreHistoryCtx(_ context.Context, poiID int64, limit int) ([]models.POIScoreHistory, error) {
	h := s.History(poiID)
	for i, j := 0, len(h)-1; i < j; i, j = i+1, j-1 {
		h[i], h[j] = h[j], h[i]
	}
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (s *MemStore) CreateDiscoveryRunCtx(_ context.Context, run *models.DiscoveryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun++
	run.ID = s.nextRun
	s.runs[run.ID] = *run
	return nil
}

func (s *MemStore) UpdateDiscoveryRunCtx(_ context.Context, run *models.DiscoveryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errs.NewDB("memstore.UpdateDiscoveryRun", fmt.Sprintf("run %d", run.ID), errs.ErrNotFound)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemStore) GetDiscoveryRunCtx(_ context.Context, id int64) (*models.DiscoveryRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errs.NewDB("memstore.GetDiscoveryRun", fmt.Sprintf("run %d", id), errs.ErrNotFound)
	}
	return &r, nil
}

func (s *MemStore) GetMonthlySpendCtx(_ context.Context, month string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spend[month], nil
}

func (s *MemStore) AddMonthlySpendCtx(_ context.Context, month string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spend[month] += amount
	return nil
}

// Begin starts a staged unit of work.
func (s *MemStore) Begin(context.Context) (domain.UnitOfWork, error) {
	return &memUoW{
		store:   s,
		pois:    make(map[int64]models.POI),
		sources: make(map[string]models.POIDataSource),
	}, nil
}

type memUoW struct {
	store   *MemStore
	pois    map[int64]models.POI
	history []models.POIScoreHistory
	sources map[string]models.POIDataSource
	locked  []int64
	closed  bool
}

func (u *memUoW) release() {
	for _, id := range u.locked {
		u.store.unlock(id)
	}
	u.locked = nil
	u.closed = true
}

func (u *memUoW) Commit() error {
	if u.closed {
		return nil
	}
	s := u.store
	s.mu.Lock()
	for id, p := range u.pois {
		s.pois[id] = p
	}
	s.history = append(s.history, u.history...)
	for k, ds := range u.sources {
		s.sources[k] = ds
	}
	s.Commits++
	s.mu.Unlock()
	u.release()
	return nil
}

func (u *memUoW) Rollback() error {
	if u.closed {
		return nil
	}
	u.store.mu.Lock()
	u.store.Rollbacks++
	u.store.mu.Unlock()
	u.release()
	return nil
}

func (u *memUoW) active(op string) error {
	if u.closed {
		return errs.NewDB("memuow."+op, "no active transaction", nil)
	}
	return nil
}

func (u *memUoW) get(id int64) (models.POI, bool) {
	if p, ok := u.pois[id]; ok {
		return p, true
	}
	return u.store.POI(id)
}

func (u *memUoW) LockPOICtx(ctx context.Context, id int64) (*models.POI, error) {
	if err := u.active("LockPOICtx"); err != nil {
		return nil, err
	}
	if err := u.store.failure("LockPOI", id); err != nil {
		return nil, err
	}
	held := false
	for _, l := range u.locked {
		if l == id {
			held = true
		}
	}
	if !held {
		if err := u.store.lock(ctx, id); err != nil {
			return nil, err
		}
		u.locked = append(u.locked, id)
	}
	p, ok := u.get(id)
	if !ok {
		return nil, errs.NewDB("memuow.LockPOI", fmt.Sprintf("poi %d", id), errs.ErrNotFound)
	}
	return &p, nil
}

func (u *memUoW) GetPOIByExternalIDCtx(_ context.Context, externalID string) (*models.POI, error) {
	if err := u.active("GetPOIByExternalIDCtx"); err != nil {
		return nil, err
	}
	for _, p := range u.pois {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			cp := p
			return &cp, nil
		}
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return u.store.byExternalLocked(externalID), nil
}

func (u *memUoW) CreatePOICtx(ctx context.Context, poi *models.POI) (int64, error) {
	if err := u.active("CreatePOICtx"); err != nil {
		return 0, err
	}
	if poi.ExternalID != nil {
		if existing, _ := u.GetPOIByExternalIDCtx(ctx, *poi.ExternalID); existing != nil {
			return 0, errs.NewConstraintViolation("memuow.CreatePOI", errs.ConstraintUnique,
				fmt.Errorf("duplicate external_id %q", *poi.ExternalID))
		}
	}
	u.store.mu.Lock()
	u.store.nextID++
	id := u.store.nextID
	u.store.mu.Unlock()
	if err := u.store.failure("CreatePOI", id); err != nil {
		return 0, err
	}
	p := *poi
	p.ID = id
	u.pois[id] = p
	return id, nil
}

func (u *memUoW) UpdatePOIDetailsCtx(_ context.Context, poi *models.POI) error {
	if err := u.active("UpdatePOIDetailsCtx"); err != nil {
		return err
	}
	if err := u.store.failure("UpdatePOIDetails", poi.ID); err != nil {
		return err
	}
	if _, ok := u.get(poi.ID); !ok {
		return errs.NewDB("memuow.UpdatePOIDetails", fmt.Sprintf("poi %d", poi.ID), errs.ErrNotFound)
	}
	u.pois[poi.ID] = *poi
	return nil
}

func (u *memUoW) UpdatePOIClassificationCtx(_ context.Context, poi *models.POI) error {
	if err := u.active("UpdatePOIClassificationCtx"); err != nil {
		return err
	}
	if err := u.store.failure("UpdatePOIClassification", poi.ID); err != nil {
		return err
	}
	cur, ok := u.get(poi.ID)
	if !ok {
		return errs.NewDB("memuow.UpdatePOIClassification", fmt.Sprintf("poi %d", poi.ID), errs.ErrNotFound)
	}
	cur.ReviewCount = poi.ReviewCount
	cur.AverageRating = poi.AverageRating
	cur.TouristRelevance = poi.TouristRelevance
	cur.BookingFrequency = poi.BookingFrequency
	cur.POIScore = poi.POIScore
	cur.Tier = poi.Tier
	cur.NextUpdateAt = poi.NextUpdateAt
	cur.LastClassifiedAt = poi.LastClassifiedAt
	cur.LastScrapedAt = poi.LastScrapedAt
	cur.Verified = poi.Verified
	u.pois[poi.ID] = cur
	return nil
}

func (u *memUoW) InsertScoreHistoryCtx(_ context.Context, h *models.POIScoreHistory) error {
	if err := u.active("InsertScoreHistoryCtx"); err != nil {
		return err
	}
	if err := u.store.failure("InsertScoreHistory", h.POIID); err != nil {
		return err
	}
	if _, ok := u.get(h.POIID); !ok {
		return errs.NewConstraintViolation("memuow.InsertScoreHistory", errs.ConstraintForeignKey,
			fmt.Errorf("poi %d", h.POIID))
	}
	u.history = append(u.history, *h)
	return nil
}

func (u *memUoW) UpsertDataSourceCtx(_ context.Context, ds *models.POIDataSource) error {
	if err := u.active("UpsertDataSourceCtx"); err != nil {
		return err
	}
	u.sources[dsKey(ds.POIID, ds.SourceName)] = *ds
	return nil
}
