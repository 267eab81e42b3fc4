package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/studies/01HXYZ":          "/v1/studies/:id",
		"/v1/studies/01HXYZ/sites":    "/v1/studies/:id/sites",
		"/v1/products":                "/v1/products",
		"/v1/products?status=active":  "/v1/products",
		"/v1/donors/01HABC?expand=mh": "/v1/donors/:id",
		"/v1/orders":                  "/v1/orders",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
