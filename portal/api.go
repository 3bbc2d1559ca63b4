package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"vditaxi/models"
)

func slotPath(slotID, action string) string {
	p := "/slots/" + url.PathEscape(slotID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// Login exchanges credentials for a token and keeps it on the client.
func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var out models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return out, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) Me(ctx context.Context) (models.User, error) {
	var out models.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

func (c *Client) Slots(ctx context.Context) ([]models.Slot, error) {
	var out []models.Slot
	err := c.do(ctx, http.MethodGet, "/slots", nil, &out)
	return out, err
}

func (c *Client) Occupy(ctx context.Context, slotID string) (models.OccupyResult, error) {
	var out models.OccupyResult
	err := c.do(ctx, http.MethodPost, slotPath(slotID, "occupy"), nil, &out)
	return out, err
}

func (c *Client) Release(ctx context.Context, slotID string) (models.ReleaseResult, error) {
	var out models.ReleaseResult
	err := c.do(ctx, http.MethodPost, slotPath(slotID, "release"), nil, &out)
	return out, err
}

// ForceRelease ends whoever holds the slot. Admin only.
func (c *Client) ForceRelease(ctx context.Context, slotID string) (models.ReleaseResult, error) {
	var out models.ReleaseResult
	err := c.do(ctx, http.MethodPost, slotPath(slotID, "force-release"), nil, &out)
	return out, err
}

func (c *Client) Credentials(ctx context.Context, slotID string) (models.SlotCredentials, error) {
	var out models.SlotCredentials
	err := c.do(ctx, http.MethodGet, slotPath(slotID, "credentials"), nil, &out)
	return out, err
}

func (c *Client) JoinQueue(ctx context.Context, slotID string) (models.QueuePosition, error) {
	var out models.QueuePosition
	err := c.do(ctx, http.MethodPost, slotPath(slotID, "queue"), nil, &out)
	return out, err
}

func (c *Client) LeaveQueue(ctx context.Context, slotID string) error {
	return c.do(ctx, http.MethodDelete, slotPath(slotID, "queue"), nil, nil)
}

func (c *Client) QueueInfo(ctx context.Context, slotID string) (models.QueueInfo, error) {
	var out models.QueueInfo
	err := c.do(ctx, http.MethodGet, slotPath(slotID, "queue"), nil, &out)
	return out, err
}

func (c *Client) Bookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	err := c.do(ctx, http.MethodGet, "/bookings", nil, &out)
	return out, err
}

func (c *Client) CreateBooking(ctx context.Context, req models.BookingRequest) (models.Booking, error) {
	var out models.Booking
	err := c.do(ctx, http.MethodPost, "/bookings", req, &out)
	return out, err
}

func (c *Client) CancelBooking(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/bookings/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) Profile(ctx context.Context) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, http.MethodGet, "/profile", nil, &out)
	return out, err
}

func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, http.MethodPut, "/profile", upd, &out)
	return out, err
}

// SetFavorites replaces the favorite slot list.
func (c *Client) SetFavorites(ctx context.Context, slotIDs []string) (models.Profile, error) {
	if slotIDs == nil {
		slotIDs = []string{}
	}
	return c.UpdateProfile(ctx, models.ProfileUpdate{Favorites: &slotIDs})
}

func (c *Client) SessionHistory(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	var out []models.SessionSummary
	path := "/profile/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SessionSummary(ctx context.Context, sessionID int64) (models.SessionSummary, error) {
	var out models.SessionSummary
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d/summary", sessionID), nil, &out)
	return out, err
}

func (c *Client) Templates(ctx context.Context) ([]models.Template, error) {
	var out []models.Template
	err := c.do(ctx, http.MethodGet, "/templates", nil, &out)
	return out, err
}

func (c *Client) CreateTemplate(ctx context.Context, req models.TemplateRequest) (models.Template, error) {
	var out models.Template
	err := c.do(ctx, http.MethodPost, "/templates", req, &out)
	return out, err
}

func (c *Client) DeleteTemplate(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/templates/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) LaunchTemplate(ctx context.Context, id int64) (models.LaunchResult, error) {
	var out models.LaunchResult
	err := c.do(ctx, http.MethodPost, "/templates/"+strconv.FormatInt(id, 10)+"/launch", nil, &out)
	return out, err
}
