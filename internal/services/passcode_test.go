package services

import (
	"testing"
	"time"

	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

func TestPasscodeSend_RegisterRequiresUnclaimedEmail(t *testing.T) {
	_, passcodes, _, db := newTestAuth(t)
	createTestUser(t, db, "taken@example.com", "secret123", models.RoleSales)

	err := passcodes.Send("taken@example.com", models.PasscodeTypeRegister)
	if code := appErrCode(t, err); code != response.CodeUserExists {
		t.Errorf("code = %q, expected %q", code, response.CodeUserExists)
	}
}

func TestPasscodeSend_ResetRequiresExistingEmail(t *testing.T) {
	_, passcodes, _, _ := newTestAuth(t)

	err := passcodes.Send("nobody@example.com", models.PasscodeTypeReset)
	if code := appErrCode(t, err); code != response.CodeUserNotFound {
		t.Errorf("code = %q, expected %q", code, response.CodeUserNotFound)
	}
}

func TestPasscodeSend_UnknownType(t *testing.T) {
	_, passcodes, _, _ := newTestAuth(t)

	err := passcodes.Send("anyone@example.com", "promo")
	if code := appErrCode(t, err); code != response.CodeBadRequest {
		t.Errorf("code = %q, expected %q", code, response.CodeBadRequest)
	}
}

func TestPasscodeSend_CooldownRejectsRapidResend(t *testing.T) {
	_, passcodes, _, _ := newTestAuth(t)

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	err := passcodes.Send("new@example.com", models.PasscodeTypeRegister)
	if code := appErrCode(t, err); code != response.CodeRateLimited {
		t.Errorf("code = %q, expected %q", code, response.CodeRateLimited)
	}

	var appErr *response.AppError
	if e, ok := err.(*response.AppError); ok {
		appErr = e
	}
	if appErr == nil || appErr.Details["retry_after"] == nil {
		t.Error("cooldown error should carry retry_after seconds")
	}
}

func TestPasscodeSend_ReissueAfterCooldownRevokesPrior(t *testing.T) {
	_, passcodes, sender, db := newTestAuth(t)

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatal(err)
	}
	first := sender.lastCode("new@example.com", models.PasscodeTypeRegister)

	// Age the first code past the cooldown window.
	if err := db.Model(&models.Passcode{}).
		Where("pass_object = ?", "new@example.com").
		Update("created_at", time.Now().Add(-2*time.Minute)).Error; err != nil {
		t.Fatal(err)
	}

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	second := sender.lastCode("new@example.com", models.PasscodeTypeRegister)

	// The first code no longer verifies; the second does.
	_, err := passcodes.Verify("new@example.com", models.PasscodeTypeRegister, first)
	if err == nil && first != second {
		t.Error("superseded code should not verify")
	}
	if _, err := passcodes.Verify("new@example.com", models.PasscodeTypeRegister, second); err != nil {
		t.Errorf("fresh code rejected: %v", err)
	}

	var active int64
	db.Model(&models.Passcode{}).
		Where("pass_object = ? AND revoked = ?", "new@example.com", false).
		Count(&active)
	if active != 1 {
		t.Errorf("active codes = %d, expected 1", active)
	}
}

func TestPasscodeVerify_ExpiredCode(t *testing.T) {
	_, passcodes, sender, db := newTestAuth(t)

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatal(err)
	}
	code := sender.lastCode("new@example.com", models.PasscodeTypeRegister)

	if err := db.Model(&models.Passcode{}).
		Where("pass_object = ?", "new@example.com").
		Update("valid_until", time.Now().Add(-time.Second)).Error; err != nil {
		t.Fatal(err)
	}

	_, err := passcodes.Verify("new@example.com", models.PasscodeTypeRegister, code)
	if c := appErrCode(t, err); c != response.CodeCodeInvalid {
		t.Errorf("code = %q, expected %q", c, response.CodeCodeInvalid)
	}
}

func TestPasscodeVerify_AbsentCode(t *testing.T) {
	_, passcodes, _, _ := newTestAuth(t)

	_, err := passcodes.Verify("never@example.com", models.PasscodeTypeRegister, "123456")
	if c := appErrCode(t, err); c != response.CodeCodeInvalid {
		t.Errorf("code = %q, expected %q", c, response.CodeCodeInvalid)
	}
}

func TestPasscodeVerify_MismatchCountsAttempts(t *testing.T) {
	_, passcodes, sender, db := newTestAuth(t)

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatal(err)
	}

	_, err := passcodes.Verify("new@example.com", models.PasscodeTypeRegister, "000000")
	if c := appErrCode(t, err); c != response.CodeCodeMismatch {
		t.Errorf("code = %q, expected %q", c, response.CodeCodeMismatch)
	}

	var record models.Passcode
	db.Where("pass_object = ?", "new@example.com").Order("id DESC").First(&record)
	if record.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, expected 1", record.FailedAttempts)
	}

	// The right code still works after a miss.
	code := sender.lastCode("new@example.com", models.PasscodeTypeRegister)
	if _, err := passcodes.Verify("new@example.com", models.PasscodeTypeRegister, code); err != nil {
		t.Errorf("correct code rejected after a miss: %v", err)
	}
}

func TestPasscodeCleanupBefore(t *testing.T) {
	_, passcodes, _, db := newTestAuth(t)

	old := time.Now().Add(-48 * time.Hour)
	db.Create(&models.Passcode{
		PassObject: "stale@example.com",
		Type:       models.PasscodeTypeRegister,
		CodeHash:   "x",
		ValidUntil: old,
		Revoked:    true,
	})
	db.Model(&models.Passcode{}).Where("pass_object = ?", "stale@example.com").
		Update("created_at", old)

	if err := passcodes.Send("fresh@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatal(err)
	}

	deleted, err := passcodes.CleanupBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("CleanupBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, expected 1", deleted)
	}

	var remaining int64
	db.Model(&models.Passcode{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("remaining = %d, expected 1", remaining)
	}
}

func TestGeneratePasscode_SixDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generatePasscode()
		if err != nil {
			t.Fatalf("generatePasscode() error = %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q has %d chars, expected 6", code, len(code))
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
	}
}
