package ops

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")

	testCases := []struct {
		name string
		err  error
	}{
		{"clone", &CloneError{URL: "https://github.com/acme/widget", Branch: "main", Err: cause}},
		{"auth", &AuthError{Err: cause}},
		{"build", &BuildError{Tag: "widget:abc", Err: cause}},
		{"push", &PushError{Tag: "widget:abc", Err: cause}},
		{"registry", &RegistryError{Name: "widget", Err: cause}},
		{"registration", &RegistrationError{Family: "widget-task", Err: cause}},
		{"service update", &ServiceUpdateError{Cluster: "prod", Service: "widget", Err: cause}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, cause) {
				t.Errorf("%T does not unwrap to its cause", tc.err)
			}
			if tc.err.Error() == "" {
				t.Errorf("%T has empty message", tc.err)
			}
		})
	}
}

func TestPushErrorOrderingViolation(t *testing.T) {
	err := &PushError{Tag: "widget:abc", Err: ErrImageNotFound}

	if !errors.Is(err, ErrImageNotFound) {
		t.Error("ordering violation should unwrap to ErrImageNotFound")
	}
	if errors.Is(err, ErrTransient) {
		t.Error("ordering violation must not match ErrTransient")
	}
}

func TestUserMessage(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		contains string
	}{
		{"cancelled", ErrCancelled, "cancelled"},
		{"wrapped cancelled", fmt.Errorf("step: %w", ErrCancelled), "cancelled"},
		{"clone", &CloneError{URL: "https://github.com/acme/widget", Branch: "main", Err: ErrTransient}, "clone"},
		{"not a repository", fmt.Errorf("/tmp/x: %w", ErrNotARepository), "repository"},
		{"build", &BuildError{Tag: "widget:abc", Err: ErrTransient}, "widget:abc"},
		{"auth", &AuthError{Err: ErrTransient}, "authenticate"},
		{"push ordering", &PushError{Tag: "widget:abc", Err: ErrImageNotFound}, "never built"},
		{"push transport", &PushError{Tag: "widget:abc", Err: ErrTransient}, "push"},
		{"registry", &RegistryError{Name: "widget", Err: ErrTransient}, "registry widget"},
		{"registration", &RegistrationError{Family: "widget-task", Err: ErrTransient}, "widget-task"},
		{"service update", &ServiceUpdateError{Cluster: "prod", Service: "widget", Err: ErrTransient}, "prod/widget"},
		{"health timeout", &HealthTimeoutError{Cluster: "prod", Service: "widget", Waited: "5m0s"}, "healthy"},
		{"bare transient", ErrTransient, "transiently"},
		{"unknown", errors.New("boom"), "failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := UserMessage(tc.err)
			if !strings.Contains(strings.ToLower(msg), strings.ToLower(tc.contains)) {
				t.Errorf("UserMessage(%v) = %q, expected to contain %q", tc.err, msg, tc.contains)
			}
		})
	}
}
