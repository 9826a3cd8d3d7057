package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Credentials holds per-platform API secrets plus the streamer roster, both
// read from the INI file named by CREDENTIALS_FILE. The roster is immutable
// for the lifetime of the process.
type Credentials struct {
	Twitch TwitchCredentials
	Trovo  TrovoCredentials

	// Roster maps platform name to the streamer refs polled on that platform.
	Roster map[string][]string
}

type TwitchCredentials struct {
	ClientID     string
	ClientSecret string
}

type TrovoCredentials struct {
	ClientID string
}

// LoadCredentials parses the INI credentials file. A missing file is not an
// error: platforms without credentials simply poll unauthenticated (or, for
// twitch, produce Error records until credentials appear on restart).
func LoadCredentials(path string) (*Credentials, error) {
	creds := &Credentials{Roster: map[string][]string{}}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return creds, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load credentials %s: %w", path, err)
	}

	if sec := f.Section("twitch"); sec != nil {
		creds.Twitch.ClientID = sec.Key("client_id").String()
		creds.Twitch.ClientSecret = sec.Key("client_secret").String()
	}
	if sec := f.Section("trovo"); sec != nil {
		creds.Trovo.ClientID = sec.Key("client_id").String()
	}

	// [roster]
	// twitch = dohertyjack, kaicenat
	// kick   = waxiest, n3on
	if sec := f.Section("roster"); sec != nil {
		for _, key := range sec.Keys() {
			platform := strings.ToLower(strings.TrimSpace(key.Name()))
			var refs []string
			for _, part := range strings.Split(key.String(), ",") {
				if ref := strings.TrimSpace(part); ref != "" {
					refs = append(refs, ref)
				}
			}
			if len(refs) > 0 {
				creds.Roster[platform] = refs
			}
		}
	}

	return creds, nil
}
