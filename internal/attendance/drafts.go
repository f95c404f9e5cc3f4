package attendance

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// DefaultDraftTTL is how long an uncommitted draft is kept.
const DefaultDraftTTL = 2 * time.Hour

// Draft is an attendance run that has not been saved yet. Its decision set
// is the only place corrections happen before commit.
type Draft struct {
	ID          string        `json:"id"`
	Class       ClassContext  `json:"class"`
	TakenBy     string        `json:"taken_by,omitempty"`
	Thresholds  Thresholds    `json:"thresholds"`
	Decisions   *Decisions    `json:"-"`
	FaceMatches []FaceMatch   `json:"face_matches"`
	Report      CollectReport `json:"report"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DraftStore keeps drafts in memory until they are committed or expire.
type DraftStore struct {
	cache *cache.Cache
}

// NewDraftStore creates a store whose drafts expire after ttl.
func NewDraftStore(ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &DraftStore{cache: cache.New(ttl, ttl*2)}
}

// Put stores a draft, assigning an ID when it has none.
func (s *DraftStore) Put(d *Draft) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	s.cache.SetDefault(d.ID, d)
}

// Get returns a draft by ID.
func (s *DraftStore) Get(id string) (*Draft, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	d, ok := v.(*Draft)
	return d, ok
}

// Delete removes a draft.
func (s *DraftStore) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of live drafts.
func (s *DraftStore) Count() int {
	return s.cache.ItemCount()
}
