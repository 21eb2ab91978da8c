package authsdk

// Navigator moves the UI to a route. The session calls it after login,
// logout, and when a refresh fails.
type Navigator interface {
	NavigateTo(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) NavigateTo(route string) { f(route) }

type nopNavigator struct{}

func (nopNavigator) NavigateTo(string) {}

// Routes names the entry points the session navigates to.
type Routes struct {
	Login string
	Home  string
}

// DefaultRoutes are the routes the mobile clients use.
var DefaultRoutes = Routes{Login: "/login", Home: "/tabs/book"}

func (r Routes) withDefaults() Routes {
	if r.Login == "" {
		r.Login = DefaultRoutes.Login
	}
	if r.Home == "" {
		r.Home = DefaultRoutes.Home
	}
	return r
}
