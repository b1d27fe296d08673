package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"/healthz":               "/healthz",
		"/v1/schedule/book":      "/v1/schedule/book",
		"/v1/users":              "/v1/users",
		"/v1/users/erik":         "/v1/users/:id",
		"/v1/users/erik/roles":   "/v1/users/:id/roles",
		"/v1/users/erik/status":  "/v1/users/:id/status",
		"/v1/users/erik/unknown": "/v1/users/erik/unknown",
		"/v1/schedule/booker?date=2024-06-12": "/v1/schedule/booker",
		"":  "/",
		"/": "/",
	}
	for in, want := range cases {
		if got := CanonicalPath(in); got != want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", in, got, want)
		}
	}
}
