package session

type ActionType string

const (
	ActionStart      ActionType = "AUTH_START"
	ActionSuccess    ActionType = "AUTH_SUCCESS"
	ActionError      ActionType = "AUTH_ERROR"
	ActionLogout     ActionType = "AUTH_LOGOUT"
	ActionClearError ActionType = "CLEAR_ERROR"
)

type Action struct {
	Type    ActionType
	User    *User
	Message string
}

func Start() Action {
	return Action{Type: ActionStart}
}

func Success(user User) Action {
	return Action{Type: ActionSuccess, User: user.clone()}
}

func Failure(message string) Action {
	return Action{Type: ActionError, Message: message}
}

func Logout() Action {
	return Action{Type: ActionLogout}
}

func ClearError() Action {
	return Action{Type: ActionClearError}
}

// Reduce is total: every action is accepted in every state and unknown action
// types return the state unchanged.
func Reduce(state State, action Action) State {
	switch action.Type {
	case ActionStart:
		state.IsLoading = true
		state.Error = nil
	case ActionSuccess:
		if action.User == nil {
			return Anonymous()
		}
		return State{
			User:            action.User.clone(),
			IsAuthenticated: true,
		}
	case ActionError:
		msg := action.Message
		return State{Error: &msg}
	case ActionLogout:
		return Anonymous()
	case ActionClearError:
		state.Error = nil
	}
	return state
}
