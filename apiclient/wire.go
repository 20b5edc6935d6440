package apiclient

// Backend token endpoints (SimpleJWT via Djoser), relative to the base URL.
const (
	EndpointTokenCreate  = "/auth/jwt/create/"
	EndpointTokenRefresh = "/auth/jwt/refresh/"
	EndpointTokenVerify  = "/auth/jwt/verify/"
)

// tokenPair is the body returned by the create and refresh endpoints.
// Refresh is only present on refresh when the backend rotates refresh tokens.
type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// isTokenEndpoint reports whether path is one of the token endpoints. They
// are sent without a bearer token and a 401 from them never starts a refresh.
func isTokenEndpoint(path string) bool {
	switch normalisePath(path) {
	case EndpointTokenCreate, EndpointTokenRefresh, EndpointTokenVerify:
		return true
	}
	return false
}

func normalisePath(path string) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if path[len(path)-1] != '/' {
		path += "/"
	}
	return path
}
