package ml

import (
	"fmt"
	"math"

	"github.com/brianvoe/gofakeit/v7"
)

// Synthesize generates n labeled sessions from a fixed seed. Attack labels
// follow a noisy score over failed logins, IP reputation, off-hours access and
// client fingerprint, so the dataset is learnable but not separable.
func Synthesize(n int, seed uint64) *Dataset {
	f := gofakeit.New(seed)

	ds := &Dataset{
		SessionIDs: make([]string, n),
		Sessions:   make([]Session, n),
		Labels:     make([]int, n),
	}

	for i := 0; i < n; i++ {
		s := Session{
			NetworkPacketSize: f.IntRange(100, 1500),
			ProtocolType:      f.RandomString([]string{"TCP", "TCP", "TCP", "UDP"}),
			LoginAttempts:     f.IntRange(1, 9),
			SessionDuration:   math.Round(f.Float64Range(0.5, 3000)*100) / 100,
			EncryptionUsed:    f.RandomString([]string{"AES", "AES", "DES"}),
			IPReputationScore: math.Round(f.Float64Range(0, 1)*1000) / 1000,
			FailedLogins:      f.IntRange(0, 5),
			BrowserType:       f.RandomString([]string{"Chrome", "Chrome", "Firefox", "Edge", "Unknown"}),
			UnusualTimeAccess: f.Float64Range(0, 1) < 0.15,
		}

		score := 0.35*float64(s.FailedLogins)/5 + 0.3*s.IPReputationScore
		if s.UnusualTimeAccess {
			score += 0.15
		}
		if s.LoginAttempts > 5 {
			score += 0.1
		}
		if s.BrowserType == "Unknown" {
			score += 0.1
		}
		if s.EncryptionUsed == "DES" {
			score += 0.05
		}
		score += f.Float64Range(-0.1, 0.1)

		ds.SessionIDs[i] = fmt.Sprintf("SID_%05d", i+1)
		ds.Sessions[i] = s
		if score > 0.45 {
			ds.Labels[i] = 1
		}
	}

	return ds
}
