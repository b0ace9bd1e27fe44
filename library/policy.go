package library

// Routes the dispatcher navigates between.
const (
	RouteLogin              = "/login"
	RouteBooks              = "/books"
	RouteUsers              = "/users"
	RouteHome               = "/"
	RouteAdminDashboard     = "/dashboard/admin"
	RouteLibrarianDashboard = "/dashboard/librarian"
	RouteMemberDashboard    = "/dashboard/member"
)

// CanManageBooks reports whether role may create, edit or delete books.
func CanManageBooks(role Role) bool {
	return role == RoleAdmin || role == RoleLibrarian
}

// CanManageUsers reports whether role may administer accounts.
func CanManageUsers(role Role) bool {
	return role == RoleAdmin
}

// HasLoanHistory reports whether role borrows books and so has a personal
// history and fines.
func HasLoanHistory(role Role) bool {
	return role == RoleMember
}

// CanBorrow reports whether role may borrow book in its current state.
func CanBorrow(role Role, book Book) bool {
	return HasLoanHistory(role) && book.Status == StatusAvailable
}

// CanReturn reports whether the member userID may return a copy of book.
func CanReturn(role Role, book Book, userID string) bool {
	return HasLoanHistory(role) && book.HasLoan(userID)
}

// CanAccess guards role-restricted screens. An empty allow list admits any
// authenticated user.
func CanAccess(user *User, authenticated bool, allowed ...Role) bool {
	if !authenticated || user == nil {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if user.Role == r {
			return true
		}
	}
	return false
}

// HomeRoute is the dashboard a role lands on after signing in.
func HomeRoute(role Role) string {
	switch role {
	case RoleAdmin:
		return RouteAdminDashboard
	case RoleLibrarian:
		return RouteLibrarianDashboard
	case RoleMember:
		return RouteMemberDashboard
	}
	return RouteHome
}
