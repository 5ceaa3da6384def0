// Package contractor implements contractor matching and recommendation
// on top of the generic document-store accessor.
package contractor

import (
	"context"
	"log/slog"
	"math"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/steward-app/steward/internal/core/domain"
	"github.com/steward-app/steward/internal/docstore"
)

// Collection names owned by this service.
const (
	CollectionContractors = "contractors"
	CollectionLandlords   = "landlords"
)

// SearchParams constrains a contractor search. Availability, rating and
// service area translate into store filters; skill-set intersection and
// the hourly-rate range apply in memory because the store cannot express
// them directly.
type SearchParams struct {
	Skills        []string
	ServiceArea   string
	OnlyAvailable bool
	MinRating     float64
	MinHourlyRate float64
	MaxHourlyRate float64
	Limit         int
	Cursor        string
	UseCache      bool
}

// Validate checks the parameter ranges.
func (p SearchParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MinRating, validation.Min(0.0), validation.Max(5.0)),
		validation.Field(&p.MinHourlyRate, validation.Min(0.0)),
		validation.Field(&p.Limit, validation.Min(0)),
	)
}

// Service composes the contractor and landlord accessors with matching,
// recommendation and rating logic.
type Service struct {
	contractors *docstore.Accessor[*domain.Contractor]
	landlords   *docstore.Accessor[*domain.Landlord]
	limiter     UsageLimiter
	log         *slog.Logger
}

// NewService creates the contractor service. A nil limiter means
// unlimited recommendations.
func NewService(contractors *docstore.Accessor[*domain.Contractor], landlords *docstore.Accessor[*domain.Landlord], limiter UsageLimiter, log *slog.Logger) *Service {
	if limiter == nil {
		limiter = Unlimited{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		contractors: contractors,
		landlords:   landlords,
		limiter:     limiter,
		log:         log,
	}
}

// Search finds contractors matching params, ordered by rating then jobs
// completed, both descending.
func (s *Service) Search(ctx context.Context, params SearchParams) docstore.Result[docstore.Page[*domain.Contractor]] {
	if err := params.Validate(); err != nil {
		return docstore.Fail[docstore.Page[*domain.Contractor]](
			docstore.NewError("search", docstore.KindInvalidArgument, err))
	}

	q := docstore.Query{}
	if params.OnlyAvailable {
		q = q.Where("available", docstore.OpEqual, true)
	}
	if params.MinRating > 0 {
		q = q.Where("rating", docstore.OpGreaterOrEqual, params.MinRating)
	}
	if params.ServiceArea != "" {
		q = q.Where("serviceArea", docstore.OpEqual, params.ServiceArea)
	}
	q = q.OrderedBy("rating", true).OrderedBy("jobsCompleted", true)
	if params.Limit > 0 {
		q = q.WithLimit(params.Limit)
	}
	if params.Cursor != "" {
		q = q.After(params.Cursor)
	}

	res := s.contractors.List(ctx, q, params.UseCache)
	if !res.Success {
		return res
	}

	// Criteria the store cannot express: skill intersection and rate range.
	filtered := make([]*domain.Contractor, 0, len(res.Data.Items))
	for _, c := range res.Data.Items {
		if len(params.Skills) > 0 && !c.HasAnySkill(params.Skills) {
			continue
		}
		if params.MinHourlyRate > 0 && c.HourlyRate < params.MinHourlyRate {
			continue
		}
		if params.MaxHourlyRate > 0 && c.HourlyRate > params.MaxHourlyRate {
			continue
		}
		filtered = append(filtered, c)
	}
	res.Data.Items = filtered
	return res
}

// Recommend picks up to maxResults contractors for a job category. The
// landlord's rolodex is consulted first; a broad search fills any
// remaining slots. Results are deduplicated, never include excludeIDs,
// and rank by rating descending then jobs completed descending.
func (s *Service) Recommend(ctx context.Context, category, landlordID string, maxResults int, excludeIDs []string) docstore.Result[[]*domain.Contractor] {
	if maxResults <= 0 {
		maxResults = 3
	}

	allowed, err := s.limiter.Allow(ctx, landlordID)
	if err != nil {
		// Fail open: an unevaluable usage check never blocks a
		// legitimate recommendation.
		s.log.Warn("Usage check failed, allowing request", "landlord", landlordID, "error", err)
		allowed = true
	}
	if !allowed {
		return docstore.Fail[[]*domain.Contractor](
			docstore.Errorf("recommend", docstore.KindPreconditionFailed,
				"recommendation limit reached for landlord %s", landlordID))
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	var picked []*domain.Contractor
	seen := make(map[string]struct{})

	for _, c := range s.rolodexCandidates(ctx, landlordID) {
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		if !c.Available || !c.HasSkill(category) {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		picked = append(picked, c)
	}

	if len(picked) < maxResults {
		res := s.Search(ctx, SearchParams{
			Skills:        []string{category},
			OnlyAvailable: true,
			Limit:         maxResults * 4,
			UseCache:      true,
		})
		if !res.Success {
			s.log.Warn("Broad search failed during recommendation", "error", res.Error)
		} else {
			for _, c := range res.Data.Items {
				if _, skip := excluded[c.ID]; skip {
					continue
				}
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				picked = append(picked, c)
			}
		}
	}

	rankContractors(picked)
	if len(picked) > maxResults {
		picked = picked[:maxResults]
	}
	return docstore.Ok(picked)
}

// rolodexCandidates resolves the landlord's saved contractors. Missing
// landlords or unresolvable ids simply contribute nothing.
func (s *Service) rolodexCandidates(ctx context.Context, landlordID string) []*domain.Contractor {
	if landlordID == "" {
		return nil
	}
	res := s.landlords.GetByID(ctx, landlordID, true)
	if !res.Success || res.Data == nil {
		return nil
	}

	var out []*domain.Contractor
	for _, id := range res.Data.Rolodex {
		cres := s.contractors.GetByID(ctx, id, true)
		if cres.Success && cres.Data != nil {
			out = append(out, cres.Data)
		}
	}
	return out
}

func rankContractors(list []*domain.Contractor) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Rating != list[j].Rating {
			return list[i].Rating > list[j].Rating
		}
		return list[i].JobsCompleted > list[j].JobsCompleted
	})
}

// UpdateRating folds a new rating into the contractor's running average,
// rounded to two decimals, optionally incrementing the completed-job
// count. The read-modify-write is not transactional: concurrent updates
// on the same id race and the last write wins.
func (s *Service) UpdateRating(ctx context.Context, id string, newRating float64, incrementJobsCompleted bool) docstore.Result[*domain.Contractor] {
	if newRating < 0 || newRating > 5 {
		return docstore.Fail[*domain.Contractor](
			docstore.Errorf("update_rating", docstore.KindInvalidArgument,
				"rating %.2f outside [0,5]", newRating))
	}

	res := s.contractors.GetByID(ctx, id, false)
	if !res.Success {
		return res
	}
	if res.Data == nil {
		return docstore.Fail[*domain.Contractor](
			docstore.Errorf("update_rating", docstore.KindNotFound, "contractor %s does not exist", id))
	}

	current := res.Data
	count := float64(current.JobsCompleted)
	newAverage := roundTo2((current.Rating*count + newRating) / (count + 1))

	partial := map[string]any{"rating": newAverage}
	if incrementJobsCompleted {
		partial["jobsCompleted"] = current.JobsCompleted + 1
	}
	return s.contractors.Update(ctx, id, partial)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
