package spintax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/grigta/outreach/pkg/logger"
)

type RegistryTestSuite struct {
	suite.Suite
	registry *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.registry = NewRegistrySeeded(NewEngineSeeded(1), logger.Nop(), 1)
}

func (s *RegistryTestSuite) TestDefaultTemplatesLoaded() {
	s.NotEmpty(s.registry.List("", ""))

	t, err := s.registry.Get("opening_friendly")
	s.NoError(err)
	s.Equal("opening", t.Category)
	s.Contains(t.Variables, "name")
}

func (s *RegistryTestSuite) TestAdd_Valid() {
	err := s.registry.Add(&MessageTemplate{
		ID:       "custom_1",
		Name:     "Custom",
		Category: "opening",
		Content:  "{Yo|Hey} [name]",
	})
	s.NoError(err)

	t, err := s.registry.Get("custom_1")
	s.NoError(err)
	s.Equal([]string{"name"}, t.Variables)
	s.False(t.CreatedAt.IsZero())
}

func (s *RegistryTestSuite) TestAdd_InvalidSpintax() {
	err := s.registry.Add(&MessageTemplate{
		ID:      "broken",
		Content: "{a|b",
	})
	s.Error(err)
	s.Contains(err.Error(), "invalid template")
}

func (s *RegistryTestSuite) TestGet_NotFound() {
	_, err := s.registry.Get("nope")
	s.ErrorIs(err, ErrTemplateNotFound)
}

func (s *RegistryTestSuite) TestList_FilterByCategory() {
	openers := s.registry.List("opening", "")
	s.Len(openers, 2)
	for _, t := range openers {
		s.Equal("opening", t.Category)
	}
}

func (s *RegistryTestSuite) TestList_PlatformFilter() {
	s.Require().NoError(s.registry.Add(&MessageTemplate{
		ID:       "ig_only",
		Category: "opening",
		Platform: "instagram",
		Content:  "hi",
	}))

	s.Len(s.registry.List("opening", "instagram"), 3)
	// Platform-specific template excluded for other platforms.
	s.Len(s.registry.List("opening", "x"), 2)
}

func (s *RegistryTestSuite) TestGenerate_CountsUsage() {
	msg, err := s.registry.Generate("opening_friendly", map[string]string{"name": "Anna"})
	s.Require().NoError(err)
	s.Equal("opening_friendly", msg.TemplateID)
	s.Contains(msg.Text, "Anna")
	s.NotContains(msg.Text, "{")
	s.NotContains(msg.Text, "[name]")

	t, err := s.registry.Get("opening_friendly")
	s.Require().NoError(err)
	s.Equal(1, t.UsageCount)
}

func (s *RegistryTestSuite) TestGenerate_NotFound() {
	_, err := s.registry.Generate("nope", nil)
	s.ErrorIs(err, ErrTemplateNotFound)
}

func (s *RegistryTestSuite) TestGenerateRandom() {
	msg, err := s.registry.GenerateRandom("opening", "", map[string]string{"name": "Bob", "niche": "fitness"})
	s.Require().NoError(err)
	s.Contains([]string{"opening_friendly", "opening_professional"}, msg.TemplateID)
	s.NotContains(msg.Text, "{")
}

func (s *RegistryTestSuite) TestGenerateRandom_EmptyCategory() {
	_, err := s.registry.GenerateRandom("missing_category", "", nil)
	s.ErrorIs(err, ErrNoTemplates)
}

func (s *RegistryTestSuite) TestGenerateRandom_PrefersSuccessfulTemplates() {
	// Give opening_friendly a strong track record and opening_professional
	// a weak one, then confirm the sampler leans toward the strong one.
	for i := 0; i < 20; i++ {
		_, err := s.registry.Generate("opening_friendly", nil)
		s.Require().NoError(err)
		s.Require().NoError(s.registry.RecordSuccess("opening_friendly"))

		_, err = s.registry.Generate("opening_professional", nil)
		s.Require().NoError(err)
	}

	counts := map[string]int{}
	for i := 0; i < 300; i++ {
		msg, err := s.registry.GenerateRandom("opening", "", nil)
		s.Require().NoError(err)
		counts[msg.TemplateID]++
	}
	s.Greater(counts["opening_friendly"], counts["opening_professional"])
}

func (s *RegistryTestSuite) TestRecordSuccess_NotFound() {
	s.ErrorIs(s.registry.RecordSuccess("nope"), ErrTemplateNotFound)
}

func (s *RegistryTestSuite) TestPreview_DoesNotCountUsage() {
	samples, err := s.registry.Preview("value_proposition", map[string]string{"niche": "crypto"}, 5)
	s.Require().NoError(err)
	s.Len(samples, 5)

	t, err := s.registry.Get("value_proposition")
	s.Require().NoError(err)
	s.Equal(0, t.UsageCount)
}

func (s *RegistryTestSuite) TestStats() {
	_, err := s.registry.Generate("opening_friendly", nil)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.RecordSuccess("opening_friendly"))

	stats := s.registry.Stats()
	s.Equal(7, stats.TotalTemplates)
	s.Equal(1, stats.TotalUsage)
	s.Equal(1.0, stats.ByTemplate["opening_friendly"])
	s.Equal(1.0, stats.MeanSuccessRate)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestSuccessRate(t *testing.T) {
	tmpl := &MessageTemplate{UsageCount: 0, SuccessCount: 0}
	assert.Equal(t, 0.0, tmpl.SuccessRate())

	tmpl = &MessageTemplate{UsageCount: 4, SuccessCount: 1}
	assert.Equal(t, 0.25, tmpl.SuccessRate())
}

func TestDefaultTemplates_AllValid(t *testing.T) {
	engine := NewEngineSeeded(1)
	for _, tmpl := range DefaultTemplates() {
		result := engine.Validate(tmpl.Content)
		require.True(t, result.Valid, "template %s: %v", tmpl.ID, result.Issues)
	}
}
