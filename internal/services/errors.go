package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
)

var (
	ErrInvalidMembershipCount = apperrors.New("INVALID_MEMBERSHIP_COUNT", "A pod needs between 2 and 4 members", http.StatusBadRequest)
	ErrUserNotFound           = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	ErrUserAlreadyMatched     = apperrors.New("USER_ALREADY_MATCHED", "User already belongs to an open pod", http.StatusConflict)

	ErrPodNotFound            = apperrors.New("POD_NOT_FOUND", "Pod not found", http.StatusNotFound)
	ErrPodNotAcceptingMembers = apperrors.New("POD_NOT_ACCEPTING_MEMBERS", "Pod is not accepting members", http.StatusConflict)
	ErrPodFull                = apperrors.New("POD_FULL", "Pod is full", http.StatusConflict)
	ErrMembershipNotFound     = apperrors.New("MEMBERSHIP_NOT_FOUND", "Active membership not found", http.StatusNotFound)
	ErrPodNotActive           = apperrors.New("POD_NOT_ACTIVE", "Pod is not active", http.StatusConflict)
	ErrInvalidPodTransition   = apperrors.New("INVALID_POD_TRANSITION", "Pod cannot move to the requested status", http.StatusConflict)

	ErrSessionNotFound        = apperrors.New("SESSION_NOT_FOUND", "Session not found", http.StatusNotFound)
	ErrInvalidStateTransition = apperrors.New("INVALID_STATE_TRANSITION", "Session cannot move to the requested status", http.StatusConflict)

	ErrWaitlistEntryNotFound = apperrors.New("WAITLIST_ENTRY_NOT_FOUND", "Waitlist entry not found", http.StatusNotFound)
	ErrWaitlistEntryClosed   = apperrors.New("WAITLIST_ENTRY_CLOSED", "Waitlist entry is no longer active", http.StatusConflict)
)

// translate maps repository failures onto the service taxonomy. Missing rows become
// notFound; anything else is a transient infrastructure failure.
func translate(err error, notFound *apperrors.AppError, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if notFound != nil && errors.Is(err, store.ErrNotFound) {
		return notFound.WithInternal(err)
	}
	return apperrors.Transient(err, message)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
