package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Release is the protocol version advertised to clients.
const Release = "0.1.4"

// MOTDLine is one styled segment of the connect message.
type MOTDLine struct {
	Text       string      `json:"text"`
	Color      string      `json:"color,omitempty"`
	ClickEvent *ClickEvent `json:"clickEvent,omitempty"`
	Underlined *bool       `json:"underlined,omitempty"`
}

// ClickEvent makes a segment clickable.
type ClickEvent struct {
	Action string `json:"action"`
	Value  string `json:"value"`
}

func (s *Server) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"release":    Release,
		"prerelease": Release,
	})
}

func (s *Server) limits(w http.ResponseWriter, r *http.Request) {
	lim := s.cfg.Get().Limitations
	writeJSON(w, map[string]any{
		"rate": map[string]int{
			"pingSize": 1024,
			"pingRate": 32,
			"equip":    1,
			"download": 50,
			"upload":   1,
		},
		"limits": map[string]any{
			"maxAvatarSize": lim.MaxAvatarSize,
			"maxAvatars":    lim.MaxAvatars,
			"allowedBadges": map[string]any{
				"special": [6]uint8{},
				"pride":   [25]uint8{},
			},
		},
	})
}

func (s *Server) motd(w http.ResponseWriter, r *http.Request) {
	lines := s.buildMOTD()
	data, err := json.MarshalIndent(lines, "", "  ")
	if err != nil {
		writeText(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeText(w, http.StatusOK, string(data))
}

// buildMOTD renders the server-info lines followed by the operator's custom
// segments. customText holds a JSON array of segments; a broken one is
// logged and skipped.
func (s *Server) buildMOTD() []MOTDLine {
	motd := s.cfg.Get().MOTD

	var custom []MOTDLine
	customErr := json.Unmarshal([]byte(motd.CustomText), &custom)
	if customErr != nil {
		s.log.Error().Err(customErr).Msg("Can't parse custom MOTD")
	}

	if !motd.DisplayServerInfo {
		return custom
	}

	uptime := time.Since(s.start).Round(time.Second)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	lines := []MOTDLine{
		{Text: fmt.Sprintf("%s%02d:%02d:%02d\n", motd.TextUptime, hours, minutes, seconds)},
		{Text: fmt.Sprintf("%s%d\n", motd.TextAuthClients, s.users.CountAuthenticated())},
	}
	if motd.DrawIndent {
		lines = append(lines, MOTDLine{Text: "----\n\n", Color: "gold"})
	}
	if customErr == nil {
		lines = append(lines, custom...)
	}
	return lines
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
