package ratelimit

import "time"

// Quota classes.
const (
	ClassGeneral     = "general"
	ClassAuth        = "auth"
	ClassOTPVerify   = "otp-verify"
	ClassOTPRequest  = "otp-request"
	ClassStudentAuth = "student-auth"
	ClassPublicForm  = "public-form"
)

const DefaultWindow = 15 * time.Minute

// Policy is the immutable configuration of one quota class.
type Policy struct {
	Class   string
	Window  time.Duration
	Max     int
	Message string
}

// DefaultPolicies returns the quota classes enforced by the gateway, keyed by class.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ClassGeneral: {
			Class:   ClassGeneral,
			Window:  DefaultWindow,
			Max:     5000,
			Message: "Too many requests from this IP, please try again after 15 minutes.",
		},
		ClassAuth: {
			Class:   ClassAuth,
			Window:  DefaultWindow,
			Max:     200,
			Message: "Too many login attempts. Please try again after 15 minutes.",
		},
		ClassOTPVerify: {
			Class:   ClassOTPVerify,
			Window:  DefaultWindow,
			Max:     10,
			Message: "Too many OTP verification attempts. Please try again after 15 minutes.",
		},
		ClassOTPRequest: {
			Class:   ClassOTPRequest,
			Window:  DefaultWindow,
			Max:     5,
			Message: "Too many OTP requests. Please wait 15 minutes before requesting again.",
		},
		ClassStudentAuth: {
			Class:   ClassStudentAuth,
			Window:  DefaultWindow,
			Max:     200,
			Message: "Too many login attempts. Please try again after 15 minutes.",
		},
		ClassPublicForm: {
			Class:   ClassPublicForm,
			Window:  DefaultWindow,
			Max:     100,
			Message: "Too many submissions from this IP. Please try again later.",
		},
	}
}
