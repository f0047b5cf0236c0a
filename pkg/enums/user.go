package enums

import "slices"

// Role is the single authorization attribute of a profile.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
)

var roles = []Role{RoleVisitor, RoleOwner, RoleAdmin}

func (r Role) String() string { return string(r) }
func (r Role) IsValid() bool  { return slices.Contains(roles, r) }

// CanOwnListings reports whether the role may create and manage gems.
func (r Role) CanOwnListings() bool { return r == RoleOwner || r == RoleAdmin }

func ParseRole(raw string) (Role, error) {
	return parse("role", roles, raw)
}

// NotificationType is the kind of an in-app notification.
type NotificationType string

const (
	NotificationTypeGemSubmitted     NotificationType = "gem_submitted"
	NotificationTypeGemApproved      NotificationType = "gem_approved"
	NotificationTypeGemRejected      NotificationType = "gem_rejected"
	NotificationTypeGemExpiringSoon  NotificationType = "gem_expiring_soon"
	NotificationTypeGemExpired       NotificationType = "gem_expired"
	NotificationTypePaymentCompleted NotificationType = "payment_completed"
	NotificationTypePaymentFailed    NotificationType = "payment_failed"
	NotificationTypeNewReview        NotificationType = "new_review"
	NotificationTypeNewFavorite      NotificationType = "new_favorite"
	NotificationTypeSystem           NotificationType = "system"
)

var notificationTypes = []NotificationType{
	NotificationTypeGemSubmitted, NotificationTypeGemApproved, NotificationTypeGemRejected,
	NotificationTypeGemExpiringSoon, NotificationTypeGemExpired,
	NotificationTypePaymentCompleted, NotificationTypePaymentFailed,
	NotificationTypeNewReview, NotificationTypeNewFavorite,
	NotificationTypeSystem,
}

func (n NotificationType) IsValid() bool { return slices.Contains(notificationTypes, n) }
