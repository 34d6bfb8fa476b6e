package breach

import (
	"strings"
	"unicode"
)

// commonWeakPatterns are substrings that dominate leaked-password lists.
var commonWeakPatterns = []string{"123456", "password", "qwerty", "abc123", "admin"}

// CheckStrength scores a password on [0,100] from length and character
// variety, with a penalty for well-known weak patterns. Independent of the
// breach corpus: a strong password may still be breached and vice versa.
func CheckStrength(password string) (score int, feedback []string) {
	if len(password) >= 8 {
		score += 20
	} else {
		feedback = append(feedback, "Password should be at least 8 characters long")
	}
	if len(password) >= 12 {
		score += 10
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if hasLower {
		score += 15
	} else {
		feedback = append(feedback, "Include lowercase letters")
	}
	if hasUpper {
		score += 15
	} else {
		feedback = append(feedback, "Include uppercase letters")
	}
	if hasDigit {
		score += 15
	} else {
		feedback = append(feedback, "Include numbers")
	}
	if hasSpecial {
		score += 15
	} else {
		feedback = append(feedback, "Include special characters")
	}

	lower := strings.ToLower(password)
	for _, pattern := range commonWeakPatterns {
		if strings.Contains(lower, pattern) {
			score -= 20
			feedback = append(feedback, "Avoid common patterns")
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, feedback
}
