package fetcher

import (
	"math/rand"
	"sync"
	"time"
)

// Fingerprint is a browser identity applied to one fetch attempt.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
}

// userAgents is a pool of current, realistic desktop browser identities.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
}

// viewports is a pool of common desktop screen sizes.
var viewports = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 800},
	{2560, 1440},
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-GB,en;q=0.9,en-US;q=0.8",
}

// Rotator hands out randomized fingerprints. Callers that issue several
// attempts for one target pass the user-agents already used so every attempt
// carries a distinct identity; two consecutive draws never repeat regardless.
type Rotator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	lastUA string
}

// NewRotator creates a rotator. A zero seed uses the current time.
func NewRotator(seed int64) *Rotator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rotator{rng: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh fingerprint whose user-agent is neither in exclude nor
// equal to the previous draw. When exclude exhausts the pool the constraint
// relaxes to the previous draw only, so Next always terminates.
func (r *Rotator) Next(exclude map[string]struct{}) Fingerprint {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]string, 0, len(userAgents))
	for _, ua := range userAgents {
		if _, used := exclude[ua]; used {
			continue
		}
		if ua == r.lastUA {
			continue
		}
		candidates = append(candidates, ua)
	}
	if len(candidates) == 0 {
		for _, ua := range userAgents {
			if ua != r.lastUA {
				candidates = append(candidates, ua)
			}
		}
	}
	ua := candidates[r.rng.Intn(len(candidates))]
	r.lastUA = ua

	vp := viewports[r.rng.Intn(len(viewports))]
	return Fingerprint{
		UserAgent:      ua,
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
		AcceptLanguage: acceptLanguages[r.rng.Intn(len(acceptLanguages))],
	}
}
