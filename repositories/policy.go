package repositories

import "client-portal/domain"

// Row-level security rules, evaluated for non-system actors only.

func isAdmin(actor domain.Actor) bool { return actor.Role == domain.RoleAdmin }

func UserPolicy(actor domain.Actor, op Op, row domain.User) bool {
	switch op {
	case OpSelect:
		// Clients see themselves and the company accounts they talk to
		return isAdmin(actor) || row.ID == actor.UserID || row.Role == domain.RoleAdmin
	case OpUpdate:
		return isAdmin(actor) || (row.ID == actor.UserID && row.Role == actor.Role)
	default:
		return isAdmin(actor)
	}
}

func ProjectPolicy(actor domain.Actor, op Op, row domain.Project) bool {
	if op == OpSelect {
		return isAdmin(actor) || row.ClientID == actor.UserID
	}
	return isAdmin(actor)
}

func FolderPolicy(actor domain.Actor, op Op, row domain.Folder) bool {
	if isAdmin(actor) {
		return true
	}
	// Clients fill in the requirement inputs of their own folders
	return row.ClientID == actor.UserID && (op == OpSelect || op == OpUpdate)
}

func DeliverablePolicy(actor domain.Actor, op Op, row domain.Deliverable) bool {
	if op == OpSelect {
		return isAdmin(actor) || row.ClientID == actor.UserID
	}
	return isAdmin(actor)
}

func MessagePolicy(actor domain.Actor, op Op, row domain.Message) bool {
	switch op {
	case OpSelect:
		return isAdmin(actor) || row.SenderID == actor.UserID || row.RecipientID == actor.UserID
	case OpInsert:
		return row.SenderID == actor.UserID
	case OpUpdate:
		return isAdmin(actor) || row.RecipientID == actor.UserID
	default:
		return isAdmin(actor)
	}
}

func NotificationPolicy(actor domain.Actor, op Op, row domain.Notification) bool {
	switch op {
	case OpInsert:
		// Any signed-in user may notify, as a side effect of messaging
		return isAdmin(actor) || row.SenderID == actor.UserID
	default:
		return isAdmin(actor) || row.UserID == actor.UserID
	}
}

func SystemAlertPolicy(actor domain.Actor, op Op, _ domain.SystemAlert) bool {
	return op == OpSelect || isAdmin(actor)
}

func SecurityAlertPolicy(actor domain.Actor, _ Op, _ domain.SecurityAlert) bool {
	return isAdmin(actor)
}

func SystemSettingPolicy(actor domain.Actor, op Op, _ domain.SystemSetting) bool {
	return op == OpSelect || isAdmin(actor)
}
