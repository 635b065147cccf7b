package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/linguahub-api/internal/dto"
	"github.com/noah-isme/linguahub-api/internal/models"
	"github.com/noah-isme/linguahub-api/internal/observability"
	"github.com/noah-isme/linguahub-api/internal/repository"
	"github.com/noah-isme/linguahub-api/pkg/ai"
)

// StudyGuideService generates and stores AI study guides.
type StudyGuideService interface {
	Generate(ctx context.Context, userID uint, payload dto.StudyGuideRequest) (dto.StudyGuideResponse, error)
	List(ctx context.Context, userID uint, limit, offset int) ([]dto.StudyGuideResponse, error)
	Get(ctx context.Context, actor ChatActor, id uint) (dto.StudyGuideResponse, error)
}

type studyGuideService struct {
	repo        repository.StudyGuideRepository
	generator   ai.StudyGuideGenerator
	redis       *redis.Client
	cachePrefix string
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
}

// NewStudyGuideService constructs the study guide service. generator and
// redisClient may be nil; without a generator Generate fails with ErrInvalidState.
func NewStudyGuideService(repo repository.StudyGuideRepository, generator ai.StudyGuideGenerator, redisClient *redis.Client, channelBase string, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) StudyGuideService {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}

	prefix := ""
	if channelBase != "" {
		prefix = channelBase + ":study_guide"
	}

	return &studyGuideService{
		repo:        repo,
		generator:   generator,
		redis:       redisClient,
		cachePrefix: prefix,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger.With().Str("component", "study_guide_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/linguahub-api/internal/service/study_guide"),
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

func (s *studyGuideService) Generate(ctx context.Context, userID uint, payload dto.StudyGuideRequest) (dto.StudyGuideResponse, error) {
	if userID == 0 {
		return dto.StudyGuideResponse{}, ErrUnauthorized
	}

	payload.Language = strings.TrimSpace(s.sanitizer.Sanitize(payload.Language))
	payload.Topic = strings.TrimSpace(s.sanitizer.Sanitize(payload.Topic))
	payload.Level = strings.ToUpper(strings.TrimSpace(payload.Level))
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudyGuideResponse{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "study_guide.generate", trace.WithAttributes(
		attribute.String("guide.language", payload.Language),
		attribute.String("guide.level", payload.Level),
	))
	defer span.End()

	key := s.cacheKey(payload)
	guide, hit := s.fetchCached(spanCtx, key)
	if !hit {
		if s.generator == nil {
			observability.StudyGuideRequests().WithLabelValues("error").Inc()
			return dto.StudyGuideResponse{}, fmt.Errorf("%w: study guide generation is disabled", ErrInvalidState)
		}

		start := time.Now()
		generated, err := s.generator.Generate(spanCtx, ai.StudyGuideInput{
			Language: payload.Language,
			Level:    payload.Level,
			Topic:    payload.Topic,
		})
		observability.StudyGuideLatency().Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			observability.StudyGuideRequests().WithLabelValues("error").Inc()
			return dto.StudyGuideResponse{}, err
		}
		guide = generated
		s.storeCached(spanCtx, key, guide)
	}

	sections, err := json.Marshal(guide.Sections)
	if err != nil {
		return dto.StudyGuideResponse{}, err
	}

	model := models.StudyGuide{
		UserID:   userID,
		Language: payload.Language,
		Level:    payload.Level,
		Topic:    payload.Topic,
		Title:    guide.Title,
		Summary:  guide.Summary,
		Sections: datatypes.JSON(sections),
		Model:    guide.Model,
	}
	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.StudyGuideResponse{}, err
	}

	result := "generated"
	if hit {
		result = "hit"
	}
	observability.StudyGuideRequests().WithLabelValues(result).Inc()
	s.logger.Info().Uint("user_id", userID).Uint("guide_id", model.ID).Bool("cache_hit", hit).Msg("study guide stored")

	response := dto.NewStudyGuideResponse(model)
	response.CacheHit = hit
	return response, nil
}

func (s *studyGuideService) List(ctx context.Context, userID uint, limit, offset int) ([]dto.StudyGuideResponse, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	guides, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return dto.NewStudyGuideResponseSlice(guides), nil
}

func (s *studyGuideService) Get(ctx context.Context, actor ChatActor, id uint) (dto.StudyGuideResponse, error) {
	if actor.ID == 0 {
		return dto.StudyGuideResponse{}, ErrUnauthorized
	}

	guide, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return dto.StudyGuideResponse{}, notFound(err, "study guide")
	}
	if guide.UserID != actor.ID && strings.ToLower(actor.Role) != models.RoleAdmin {
		return dto.StudyGuideResponse{}, fmt.Errorf("%w: study guide belongs to another user", ErrForbidden)
	}

	return dto.NewStudyGuideResponse(guide), nil
}

func (s *studyGuideService) cacheKey(payload dto.StudyGuideRequest) string {
	sum := sha256.Sum256([]byte(strings.ToLower(payload.Language) + "|" + payload.Level + "|" + strings.ToLower(payload.Topic)))
	return fmt.Sprintf("%s:%s", s.cachePrefix, hex.EncodeToString(sum[:]))
}

func (s *studyGuideService) fetchCached(ctx context.Context, key string) (ai.StudyGuide, bool) {
	if s.redis == nil || s.cachePrefix == "" {
		return ai.StudyGuide{}, false
	}

	raw, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read study guide cache")
		}
		return ai.StudyGuide{}, false
	}

	var entry cachedStudyGuide
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn().Err(err).Msg("failed to decode cached study guide")
		return ai.StudyGuide{}, false
	}

	guide := entry.Guide
	guide.Model = entry.Model
	return guide, true
}

func (s *studyGuideService) storeCached(ctx context.Context, key string, guide ai.StudyGuide) {
	if s.redis == nil || s.cachePrefix == "" {
		return
	}

	payload, err := json.Marshal(cachedStudyGuide{Guide: guide, Model: guide.Model})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode study guide for cache")
		return
	}
	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache study guide")
	}
}

type cachedStudyGuide struct {
	Guide ai.StudyGuide `json:"guide"`
	Model string        `json:"model"`
}
