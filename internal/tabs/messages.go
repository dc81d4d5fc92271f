package tabs

import (
	domain "authgate-service/internal/domain/auth"
	wstypes "authgate-service/internal/domain/websocket"
	"authgate-service/internal/service/auth"
	"authgate-service/internal/tabsync"
)

// StateMessage is the snapshot pushed to a tab after every change.
func StateMessage(st auth.State) *wstypes.WSMessage {
	return wstypes.NewMessage(wstypes.EventTypeAuthState, StateData(st))
}

func StateData(st auth.State) wstypes.StateData {
	data := wstypes.StateData{
		Status:           string(st.Status),
		IsAuthenticated:  st.IsAuthenticated(),
		IsLoading:        st.IsLoading,
		Error:            st.Error,
		CurrentSessionID: st.CurrentSessionID,
		Version:          st.Version,
	}
	if st.MFAPending != nil {
		data.MFAFactorID = st.MFAPending.FactorID
	}
	if st.User != nil {
		data.User = domain.NewUserInfo(st.User)
	}
	return data
}

// navigator turns machine directives into websocket messages.
type navigator struct {
	tabID  string
	sender Sender
}

func (n *navigator) Navigate(to string) {
	n.sender.SendToTab(n.tabID, wstypes.NewMessage(wstypes.EventTypeNavigate, wstypes.NavigateData{To: to}))
}

func (n *navigator) Reload() {
	n.sender.SendToTab(n.tabID, wstypes.NewMessage(wstypes.EventTypeReload, nil))
}

func (n *navigator) Notify(msg tabsync.Message) {
	n.sender.SendToTab(n.tabID, wstypes.NewMessage(wstypes.EventTypeSyncNotice, wstypes.NoticeData{
		Type:    string(msg.Type),
		Payload: msg.Payload,
	}))
}
