package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"vditaxi/models"
	"vditaxi/slotsync"
)

var (
	green    = lipgloss.Color("#a6e3a1")
	peach    = lipgloss.Color("#fab387")
	sapphire = lipgloss.Color("#74c7ec")
	subtext  = lipgloss.Color("#a6adc8")
	surface  = lipgloss.Color("#45475a")

	titleStyle = lipgloss.NewStyle().Foreground(sapphire).Bold(true)
	freeStyle  = lipgloss.NewStyle().Foreground(green)
	busyStyle  = lipgloss.NewStyle().Foreground(peach)
	mutedStyle = lipgloss.NewStyle().Foreground(subtext)
	idStyle    = lipgloss.NewStyle().Width(10)
	nameStyle  = lipgloss.NewStyle().Width(28)
	paneStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(surface).
			Padding(0, 1)
)

// board is everything one render needs, copied out of the synchronizer.
type board struct {
	Slots     slotsync.Snapshot[[]models.Slot]
	Favorites []string
	Active    *slotsync.Session
	Now       time.Time
}

func boardOf(s *slotsync.Synchronizer, now time.Time) board {
	b := board{Slots: s.Slots(), Favorites: s.Profile().Data.Favorites, Now: now}
	if sess, ok := s.Active(); ok {
		b.Active = &sess
	}
	return b
}

func renderBoard(b board) string {
	var sections []string
	for _, cat := range categories(b.Slots.Data) {
		rows := []string{titleStyle.Render(cat)}
		for _, slot := range b.Slots.Data {
			if slot.Category == cat {
				rows = append(rows, renderSlot(slot, slices.Contains(b.Favorites, slot.ID)))
			}
		}
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	if len(sections) == 0 {
		sections = append(sections, mutedStyle.Render("no slots"))
	}
	if b.Active != nil {
		sections = append(sections, fmt.Sprintf("your session: %s for %s",
			busyStyle.Render(b.Active.SlotID), b.Active.Elapsed.Truncate(time.Second)))
	}
	sections = append(sections, mutedStyle.Render(status(b)))
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func renderSlot(s models.Slot, favorite bool) string {
	star := " "
	if favorite {
		star = "★"
	}
	var state string
	if s.Available {
		state = freeStyle.Render("free")
	} else {
		state = busyStyle.Render("busy") + " " + s.OccupantName
		if s.SessionMinutes != nil {
			state += fmt.Sprintf(" %dm", *s.SessionMinutes)
		}
		if s.QueueSize > 0 {
			state += mutedStyle.Render(fmt.Sprintf(" (+%d queued)", s.QueueSize))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		star+" ", idStyle.Render(s.ID), nameStyle.Render(s.ServiceName), state)
}

// categories lists categories in first-seen order.
func categories(slots []models.Slot) []string {
	var out []string
	for _, s := range slots {
		if !slices.Contains(out, s.Category) {
			out = append(out, s.Category)
		}
	}
	return out
}

func status(b board) string {
	var parts []string
	switch {
	case b.Slots.FetchedAt.IsZero():
		parts = append(parts, "never loaded")
	default:
		parts = append(parts, "updated "+b.Now.Sub(b.Slots.FetchedAt).Truncate(time.Second).String()+" ago")
	}
	if b.Slots.Loading {
		parts = append(parts, "refreshing")
	}
	if b.Slots.Stale {
		parts = append(parts, "stale")
	}
	if b.Slots.Err != nil {
		parts = append(parts, "last refresh failed")
	}
	return strings.Join(parts, " · ")
}

func renderBookings(list []models.Booking) string {
	if len(list) == 0 {
		return mutedStyle.Render("no bookings")
	}
	rows := []string{titleStyle.Render("BOOKINGS")}
	for _, b := range list {
		rows = append(rows, fmt.Sprintf("%-5d %-10s %s %s  %3d min  %s",
			b.ID, b.SlotID, b.Date, b.StartTime, b.DurationMin, b.Status))
	}
	return paneStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
