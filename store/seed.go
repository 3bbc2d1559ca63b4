package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"vditaxi/models"
)

var seedSlots = []models.SlotRecord{
	{ID: "ppx-1", ServiceName: "Perplexity Max #1", Tier: "Max", Category: "RESEARCH", CategoryAccent: "#3b82f6", MonthlyCost: 200},
	{ID: "ppx-2", ServiceName: "Perplexity Max #2", Tier: "Max", Category: "RESEARCH", CategoryAccent: "#3b82f6", MonthlyCost: 200},
	{ID: "ppx-3", ServiceName: "Perplexity Max #3", Tier: "Max", Category: "RESEARCH", CategoryAccent: "#3b82f6", MonthlyCost: 200},
	{ID: "gem-dt", ServiceName: "Gemini Ultra - Deep Think", Tier: "Ultra", Category: "GOOGLE AI", CategoryAccent: "#4285f4", MonthlyCost: 250},
	{ID: "nbp", ServiceName: "Nano Banana Pro", Tier: "Pro", Category: "GOOGLE AI", CategoryAccent: "#4285f4", MonthlyCost: 200},
	{ID: "gem-veo", ServiceName: "Veo + Flow", Tier: "Ultra", Category: "VIDEO", CategoryAccent: "#a855f7", MonthlyCost: 250},
	{ID: "nb-drive", ServiceName: "NotebookLM + Drive", Tier: "Ultra", Category: "GOOGLE AI", CategoryAccent: "#4285f4", MonthlyCost: 250},
	{ID: "gpt-1", ServiceName: "ChatGPT Pro - o3-pro", Tier: "Pro", Category: "REASONING", CategoryAccent: "#8b5cf6", MonthlyCost: 200},
	{ID: "hf-1", ServiceName: "Higgsfield Ultimate", Tier: "Ultimate", Category: "VIDEO", CategoryAccent: "#a855f7", MonthlyCost: 50},
	{ID: "lov-1", ServiceName: "Lovable Team", Tier: "Team", Category: "CODE", CategoryAccent: "#f97316", MonthlyCost: 50},
}

var seedTemplates = []models.Template{
	{Name: "Competitor research", Icon: "🔍", SlotIDs: []string{"ppx-1", "nb-drive"}},
	{Name: "Video production", Icon: "🎬", SlotIDs: []string{"gem-veo", "hf-1"}},
	{Name: "Slide deck", Icon: "📊", SlotIDs: []string{"gem-dt", "nbp"}},
}

type seedUser struct {
	user     models.User
	password string
}

var seedUsers = []seedUser{
	{models.User{Name: "Admin", Username: "admin", IsAdmin: true}, "admin123"},
	{models.User{Name: "Anna", Username: "anna", IsFirstLogin: true, TelegramID: "@anna"}, "user123"},
}

// Seed inserts the demo users, slots and templates that are missing.
// Running it twice is harmless.
func Seed(ctx context.Context, st Store, now time.Time) error {
	for _, su := range seedUsers {
		if _, err := st.UserByUsername(ctx, su.user.Username); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(su.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed: hash password: %w", err)
		}
		u := su.user
		u.PasswordHash = string(hash)
		u.CreatedAt = now
		if _, err := st.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed: user %s: %w", u.Username, err)
		}
	}

	for _, s := range seedSlots {
		if _, err := st.GetSlot(ctx, s.ID); err == nil {
			continue
		}
		s.IsActive = true
		if err := st.UpsertSlot(ctx, s); err != nil {
			return fmt.Errorf("seed: slot %s: %w", s.ID, err)
		}
	}

	existing, err := st.ListTemplates(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Name] = true
	}
	for _, t := range seedTemplates {
		if have[t.Name] {
			continue
		}
		if _, err := st.CreateTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed: template %q: %w", t.Name, err)
		}
	}
	return nil
}
