package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *response.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

func TestLogin_Success(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "sales@example.com", "secret123", models.RoleSales)

	result, err := auth.Login(&LoginRequest{
		Email:    "sales@example.com",
		Password: "secret123",
	}, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.AccessToken == "" {
		t.Error("missing access token")
	}
	if result.RefreshToken == "" {
		t.Error("missing refresh token")
	}
	if result.SessionID == "" {
		t.Error("missing session id")
	}

	claims, err := utils.ParseToken(result.AccessToken)
	if err != nil {
		t.Fatalf("issued access token does not parse: %v", err)
	}
	if claims.Role != models.RoleSales {
		t.Errorf("Role = %q", claims.Role)
	}
	if claims.IsAdmin {
		t.Error("sales user should not be admin")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	_, err := auth.Login(&LoginRequest{
		Email:    "user@example.com",
		Password: "wrong",
	}, "127.0.0.1", "test-agent")

	if code := appErrCode(t, err); code != response.CodeInvalidCredentials {
		t.Errorf("code = %q, expected %q", code, response.CodeInvalidCredentials)
	}
}

func TestLogin_UnknownUserSameError(t *testing.T) {
	auth, _, _, _ := newTestAuth(t)

	_, err := auth.Login(&LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	}, "127.0.0.1", "test-agent")

	if code := appErrCode(t, err); code != response.CodeInvalidCredentials {
		t.Errorf("unknown user should fail with %q, got %q", response.CodeInvalidCredentials, code)
	}
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "victim@example.com", "secret123", models.RoleSales)

	// Three failures hit the configured maximum.
	for i := 0; i < 3; i++ {
		_, err := auth.Login(&LoginRequest{
			Email:    "victim@example.com",
			Password: "wrong",
		}, "127.0.0.1", "test-agent")
		if err == nil {
			t.Fatalf("attempt %d should fail", i+1)
		}
	}

	var user models.User
	if err := db.Where("email = ?", "victim@example.com").First(&user).Error; err != nil {
		t.Fatal(err)
	}
	if user.LockoutUntil == nil || !user.LockoutUntil.After(time.Now()) {
		t.Fatal("lockout window should be open")
	}
	if user.FailedAttempts != 0 {
		t.Errorf("counter should reset on lockout, got %d", user.FailedAttempts)
	}

	// Even the correct password is rejected while locked, with the
	// lockout code rather than a credential error.
	_, err := auth.Login(&LoginRequest{
		Email:    "victim@example.com",
		Password: "secret123",
	}, "127.0.0.1", "test-agent")
	if code := appErrCode(t, err); code != response.CodeAccountLocked {
		t.Errorf("code = %q, expected %q", code, response.CodeAccountLocked)
	}

	var appErr *response.AppError
	errors.As(err, &appErr)
	if appErr.Details == nil {
		t.Error("lockout error should carry remaining seconds")
	}
}

func TestLogin_ExpiredLockoutAdmits(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	user := createTestUser(t, db, "back@example.com", "secret123", models.RoleSales)

	past := time.Now().Add(-time.Minute)
	if err := db.Model(user).Update("lockout_until", past).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := auth.Login(&LoginRequest{
		Email:    "back@example.com",
		Password: "secret123",
	}, "127.0.0.1", "test-agent"); err != nil {
		t.Fatalf("expired lockout should admit a correct login, got %v", err)
	}
}

func TestLogin_SuccessClearsCounter(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "flaky@example.com", "secret123", models.RoleSales)

	for i := 0; i < 2; i++ {
		auth.Login(&LoginRequest{Email: "flaky@example.com", Password: "wrong"}, "", "")
	}
	if _, err := auth.Login(&LoginRequest{
		Email:    "flaky@example.com",
		Password: "secret123",
	}, "", ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var user models.User
	db.Where("email = ?", "flaky@example.com").First(&user)
	if user.FailedAttempts != 0 {
		t.Errorf("counter = %d after success, expected 0", user.FailedAttempts)
	}
}

func TestRefresh_RotatesCredential(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, err := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	pair, err := auth.Refresh(result.RefreshToken, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if pair.RefreshToken == result.RefreshToken {
		t.Error("refresh should rotate the stored credential")
	}
	if _, err := utils.ParseToken(pair.AccessToken); err != nil {
		t.Errorf("new access token does not parse: %v", err)
	}

	// The old record is revoked and points at its successor.
	var old models.RefreshToken
	if err := db.Where("token_hash = ?", hashRefreshSecret(result.RefreshToken)).First(&old).Error; err != nil {
		t.Fatal(err)
	}
	if !old.Revoked {
		t.Error("redeemed record should be revoked")
	}
	if old.ReplacedByTokenID == nil {
		t.Error("redeemed record should link its successor")
	}
}

func TestRefresh_SecondRedemptionFails(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")

	if _, err := auth.Refresh(result.RefreshToken, "", ""); err != nil {
		t.Fatalf("first redemption: %v", err)
	}

	_, err := auth.Refresh(result.RefreshToken, "", "")
	if code := appErrCode(t, err); code != response.CodeRefreshInvalid {
		t.Errorf("second redemption: code = %q, expected %q", code, response.CodeRefreshInvalid)
	}
}

func TestRefresh_ConcurrentRedemptionSingleWinner(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, err := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	if err != nil {
		t.Fatal(err)
	}

	const redeemers = 8
	var wg sync.WaitGroup
	var wins atomic.Int64
	errs := make([]error, redeemers)

	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := auth.Refresh(result.RefreshToken, "", ""); err == nil {
				wins.Add(1)
			} else {
				errs[i] = err
			}
		}(i)
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Fatalf("winners = %d, expected exactly 1", n)
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		if code := appErrCode(t, err); code != response.CodeRefreshInvalid {
			t.Errorf("loser %d: code = %q, expected %q", i, code, response.CodeRefreshInvalid)
		}
	}

	// Only the winner's successor remains usable.
	var active int64
	db.Model(&models.RefreshToken{}).Where("revoked = ?", false).Count(&active)
	if active != 1 {
		t.Errorf("active refresh records = %d, expected 1", active)
	}
}

func TestRefresh_UnknownAndExpiredFailAlike(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	user := createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	_, unknownErr := auth.Refresh("no-such-secret", "", "")
	if code := appErrCode(t, unknownErr); code != response.CodeRefreshInvalid {
		t.Errorf("unknown secret: code = %q", code)
	}

	result, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	if err := db.Model(&models.RefreshToken{}).
		Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}

	_, expiredErr := auth.Refresh(result.RefreshToken, "", "")
	if code := appErrCode(t, expiredErr); code != response.CodeRefreshInvalid {
		t.Errorf("expired secret: code = %q", code)
	}
}

func TestRefresh_RevokedSessionRejects(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	if err := db.Model(&models.Session{}).
		Where("id = ?", result.SessionID).
		Update("revoked", true).Error; err != nil {
		t.Fatal(err)
	}

	_, err := auth.Refresh(result.RefreshToken, "", "")
	if code := appErrCode(t, err); code != response.CodeRefreshInvalid {
		t.Errorf("code = %q, expected %q", code, response.CodeRefreshInvalid)
	}
}

func TestLogout_RevokesSessionChain(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	pair, _ := auth.Refresh(result.RefreshToken, "", "")

	if err := auth.Logout(pair.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	var session models.Session
	db.First(&session, "id = ?", result.SessionID)
	if !session.Revoked {
		t.Error("session should be revoked")
	}

	if _, err := auth.Refresh(pair.RefreshToken, "", ""); err == nil {
		t.Error("refresh after logout should fail")
	}
}

func TestLogout_UnknownTokenIsNoop(t *testing.T) {
	auth, _, _, _ := newTestAuth(t)

	if err := auth.Logout("never-issued"); err != nil {
		t.Errorf("logout of unknown token should be silent, got %v", err)
	}
}

func TestRegister_WithPasscode(t *testing.T) {
	auth, passcodes, sender, db := newTestAuth(t)

	if err := passcodes.Send("new@example.com", models.PasscodeTypeRegister); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	code := sender.lastCode("new@example.com", models.PasscodeTypeRegister)
	if len(code) != 6 {
		t.Fatalf("code = %q, expected 6 digits", code)
	}

	result, err := auth.Register(&RegisterRequest{
		Email:    "new@example.com",
		Password: "secret123",
		Passcode: code,
		Name:     "New User",
	}, "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result.User.Role != models.RoleSales {
		t.Errorf("new accounts default to sales, got %q", result.User.Role)
	}

	// The consumed code cannot be replayed for a second account.
	var record models.Passcode
	db.Where("pass_object = ?", "new@example.com").Order("id DESC").First(&record)
	if !record.Revoked {
		t.Error("consumed passcode should be revoked")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "taken@example.com", "secret123", models.RoleSales)

	_, err := auth.Register(&RegisterRequest{
		Email:    "taken@example.com",
		Password: "secret123",
		Passcode: "123456",
	}, "", "")
	if code := appErrCode(t, err); code != response.CodeUserExists {
		t.Errorf("code = %q, expected %q", code, response.CodeUserExists)
	}
}

func TestChangePassword_CascadeRevokesEverything(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	user := createTestUser(t, db, "user@example.com", "oldpass1", models.RoleSales)

	first, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "oldpass1"}, "", "")
	second, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "oldpass1"}, "", "")

	cascade, err := auth.ChangePassword(user.ID, &ChangePasswordRequest{
		OldPassword: "oldpass1",
		NewPassword: "newpass2",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if failed := cascade.Failed(); len(failed) > 0 {
		t.Errorf("cascade steps failed: %v", failed)
	}

	// Both sessions are dead from the credential side.
	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := auth.Refresh(token, "", ""); err == nil {
			t.Error("refresh should fail after password change")
		}
	}

	var sessions int64
	db.Model(&models.Session{}).Where("user_id = ? AND revoked = ?", user.ID, false).Count(&sessions)
	if sessions != 0 {
		t.Errorf("%d sessions still active after cascade", sessions)
	}

	// Old password out, new password in.
	if _, err := auth.Login(&LoginRequest{Email: "user@example.com", Password: "oldpass1"}, "", ""); err == nil {
		t.Error("old password should be rejected")
	}
	if _, err := auth.Login(&LoginRequest{Email: "user@example.com", Password: "newpass2"}, "", ""); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	user := createTestUser(t, db, "user@example.com", "oldpass1", models.RoleSales)

	_, err := auth.ChangePassword(user.ID, &ChangePasswordRequest{
		OldPassword: "not-it",
		NewPassword: "newpass2",
	})
	if code := appErrCode(t, err); code != response.CodeInvalidCredentials {
		t.Errorf("code = %q, expected %q", code, response.CodeInvalidCredentials)
	}

	// The miss counts against the failure budget.
	var fresh models.User
	db.First(&fresh, user.ID)
	if fresh.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, expected 1", fresh.FailedAttempts)
	}
}

func TestResetPassword_WithCode(t *testing.T) {
	auth, passcodes, sender, db := newTestAuth(t)
	createTestUser(t, db, "forgot@example.com", "oldpass1", models.RoleSales)

	session, _ := auth.Login(&LoginRequest{Email: "forgot@example.com", Password: "oldpass1"}, "", "")

	if err := passcodes.Send("forgot@example.com", models.PasscodeTypeReset); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	code := sender.lastCode("forgot@example.com", models.PasscodeTypeReset)

	if _, err := auth.ResetPassword(&ResetPasswordRequest{
		Email:    "forgot@example.com",
		Passcode: code,
		Password: "newpass2",
	}); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}

	// Recovery revokes the standing sessions too.
	if _, err := auth.Refresh(session.RefreshToken, "", ""); err == nil {
		t.Error("refresh should fail after reset")
	}
	if _, err := auth.Login(&LoginRequest{Email: "forgot@example.com", Password: "newpass2"}, "", ""); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestResetPassword_MismatchCountsAgainstAccount(t *testing.T) {
	auth, passcodes, _, db := newTestAuth(t)
	user := createTestUser(t, db, "forgot@example.com", "oldpass1", models.RoleSales)

	if err := passcodes.Send("forgot@example.com", models.PasscodeTypeReset); err != nil {
		t.Fatal(err)
	}

	_, err := auth.ResetPassword(&ResetPasswordRequest{
		Email:    "forgot@example.com",
		Passcode: "000000",
		Password: "newpass2",
	})
	if code := appErrCode(t, err); code != response.CodeCodeMismatch {
		t.Errorf("code = %q, expected %q", code, response.CodeCodeMismatch)
	}

	var fresh models.User
	db.First(&fresh, user.ID)
	if fresh.FailedAttempts != 1 {
		t.Errorf("FailedAttempts = %d, expected 1", fresh.FailedAttempts)
	}
}

func TestExchangeAssertion_CreatesAccountOnFirstSight(t *testing.T) {
	auth, _, _, db := newTestAuth(t)

	claims := utils.AssertionClaims{
		Email: "external@example.com",
		Name:  "External User",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-assertion-secret"))
	if err != nil {
		t.Fatal(err)
	}

	result, err := auth.ExchangeAssertion(assertion, "corp-sso", "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("ExchangeAssertion() error = %v", err)
	}
	if result.User.OAuthProvider != "corp-sso" {
		t.Errorf("OAuthProvider = %q", result.User.OAuthProvider)
	}

	// Second exchange reuses the account.
	again, err := auth.ExchangeAssertion(assertion, "corp-sso", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.User.ID != result.User.ID {
		t.Error("second exchange should not create a new account")
	}

	var count int64
	db.Model(&models.User{}).Where("email = ?", "external@example.com").Count(&count)
	if count != 1 {
		t.Errorf("user count = %d", count)
	}
}

func TestExchangeAssertion_BadSignature(t *testing.T) {
	auth, _, _, _ := newTestAuth(t)

	claims := utils.AssertionClaims{
		Email: "spoof@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	assertion, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("attacker-secret"))

	_, err := auth.ExchangeAssertion(assertion, "corp-sso", "", "")
	if code := appErrCode(t, err); code != response.CodeCredentialInvalid {
		t.Errorf("code = %q, expected %q", code, response.CodeCredentialInvalid)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	user := createTestUser(t, db, "multi@example.com", "secret123", models.RoleSales)

	for i := 0; i < 3; i++ {
		if _, err := auth.Login(&LoginRequest{Email: "multi@example.com", Password: "secret123"}, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	tokens, sessions, err := auth.RevokeAllForUser(user.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if tokens != 3 || sessions != 3 {
		t.Errorf("revoked %d tokens, %d sessions, expected 3 each", tokens, sessions)
	}
}

func TestRevokeSession_OwnershipEnforced(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "owner@example.com", "secret123", models.RoleSales)
	other := createTestUser(t, db, "other@example.com", "secret123", models.RoleSales)

	result, _ := auth.Login(&LoginRequest{Email: "owner@example.com", Password: "secret123"}, "", "")

	if err := auth.RevokeSession(other.ID, result.SessionID); err == nil {
		t.Error("revoking another user's session should fail")
	}

	owner, _ := auth.GetUserByID(result.User.ID)
	if err := auth.RevokeSession(owner.ID, result.SessionID); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if _, err := auth.Refresh(result.RefreshToken, "", ""); err == nil {
		t.Error("refresh should fail after session revocation")
	}
}

func TestCreateAdminIfNotExists(t *testing.T) {
	auth, _, _, db := newTestAuth(t)

	if err := auth.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("CreateAdminIfNotExists() error = %v", err)
	}
	if err := auth.CreateAdminIfNotExists(); err != nil {
		t.Fatalf("second call: %v", err)
	}

	var count int64
	db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count != 1 {
		t.Errorf("admin count = %d, expected 1", count)
	}

	if _, err := auth.Login(&LoginRequest{Email: "admin@localhost", Password: "admin123"}, "", ""); err != nil {
		t.Errorf("default admin login failed: %v", err)
	}
}

func TestCleanupRefreshTokens(t *testing.T) {
	auth, _, _, db := newTestAuth(t)
	createTestUser(t, db, "user@example.com", "secret123", models.RoleSales)

	result, _ := auth.Login(&LoginRequest{Email: "user@example.com", Password: "secret123"}, "", "")
	if _, err := auth.Refresh(result.RefreshToken, "", ""); err != nil {
		t.Fatal(err)
	}

	// Age everything past the cutoff; the revoked predecessor goes, the
	// live successor stays.
	old := time.Now().Add(-72 * time.Hour)
	db.Model(&models.RefreshToken{}).Where("1 = 1").Update("created_at", old)

	deleted, err := auth.CleanupRefreshTokens(time.Now().Add(-48 * time.Hour))
	if err != nil {
		t.Fatalf("CleanupRefreshTokens() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, expected 1", deleted)
	}

	var remaining int64
	db.Model(&models.RefreshToken{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("remaining = %d, expected 1", remaining)
	}
}
