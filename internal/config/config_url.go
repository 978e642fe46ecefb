// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package config

import (
	"fmt"
	"net/url"
)

// validateBaseURL checks an OpenAI-compatible base URL. A path such as /v1
// is fine; the chat completions path is appended to it. Credentials belong
// in api_key_env, never in the URL.
func validateBaseURL(rawURL, field string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	case u.Host == "":
		return fmt.Errorf("%s: host is required", field)
	case u.User != nil:
		return fmt.Errorf("%s: must not embed credentials", field)
	case u.RawQuery != "" || u.Fragment != "":
		return fmt.Errorf("%s: must not carry a query or fragment", field)
	}
	return nil
}
