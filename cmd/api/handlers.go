package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/PaulBabatuyi/streams/internal/db"
	"github.com/PaulBabatuyi/streams/internal/middleware"
	"github.com/PaulBabatuyi/streams/internal/streams"
)

// maxBodyBytes bounds request bodies. The largest legitimate body is a
// 1000 character message plus its envelope.
const maxBodyBytes = 64 << 10

var apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "streams",
	Subsystem: "api",
	Name:      "errors_total",
	Help:      "The total number of failed API calls by error kind",
}, []string{"kind"})

// api serves the HTTP surface of a streams.Service.
type api struct {
	svc     *streams.Service
	hub     *ConnectionHub
	backend db.Backend
	logger  *log.Logger
}

// errorBody is the JSON body of every failed call.
type errorBody struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type empty struct{}

// handlerFunc returns the value to encode as the response body.
type handlerFunc func(r *http.Request) (any, error)

func (a *api) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("error encoding json", "err", err)
	}
}

// writeError maps err onto 400 (InputError), 403 (AccessError) or 500.
// The text of internal errors is logged, never returned.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind, msg := http.StatusInternalServerError, "internal", "internal server error"
	switch {
	case streams.IsInputError(err):
		code, kind, msg = http.StatusBadRequest, "input", err.Error()
	case streams.IsAccessError(err):
		code, kind, msg = http.StatusForbidden, "access", err.Error()
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
			"request_id", middleware.RequestIDFromContext(r.Context()))
	}
	apiErrors.WithLabelValues(kind).Inc()
	writeJSON(w, code, errorBody{Code: code, Name: "System Error", Message: msg})
}

// decode reads a JSON request body into a new T.
func decode[T any](r *http.Request) (*T, error) {
	var v T
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&v); err != nil {
		return nil, &streams.InputError{Msg: "malformed request body", Err: err}
	}
	return &v, nil
}

// tokenFromRequest picks the session token from the body, then the token
// query parameter, then an Authorization bearer header.
func tokenFromRequest(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer"))
	}
	return ""
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &streams.InputError{Msg: fmt.Sprintf("invalid %s %q", name, v), Err: err}
	}
	return n, nil
}

// queryIntDefault is queryInt with a fallback for an absent parameter.
func queryIntDefault(r *http.Request, name string, def int) (int, error) {
	if !r.URL.Query().Has(name) {
		return def, nil
	}
	return queryInt(r, name)
}

type tokenBody struct {
	Token string `json:"token"`
}

type credentialsBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
}

type profileBody struct {
	tokenBody
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
	Email     string `json:"email"`
	Handle    string `json:"handle_str"`
}

type userBody struct {
	tokenBody
	UserID       int `json:"u_id"`
	PermissionID int `json:"permission_id"`
}

type channelBody struct {
	tokenBody
	ChannelID int    `json:"channel_id"`
	UserID    int    `json:"u_id"`
	Name      string `json:"name"`
	IsPublic  bool   `json:"is_public"`
	Message   string `json:"message"`
	Length    int64  `json:"length"`
}

type dmBody struct {
	tokenBody
	DMID    int   `json:"dm_id"`
	UserIDs []int `json:"u_ids"`
}

type messageBody struct {
	tokenBody
	MessageID   int    `json:"message_id"`
	ChannelID   int    `json:"channel_id"`
	DMID        int    `json:"dm_id"`
	Message     string `json:"message"`
	ReactID     int    `json:"react_id"`
	TimeSent    int64  `json:"time_sent"`
	OgMessageID int    `json:"og_message_id"`
}

// routes registers every endpoint on r.
func (a *api) routes(r *mux.Router) {
	get, post, put, del := http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete

	r.HandleFunc("/livez", a.livez).Methods(get)
	r.HandleFunc("/readyz", a.readyz).Methods(get)
	r.Handle("/clear/v1", a.handle(a.clear)).Methods(del)

	r.Handle("/auth/register/v2", a.handle(a.register)).Methods(post)
	r.Handle("/auth/login/v2", a.handle(a.login)).Methods(post)
	r.Handle("/auth/logout/v1", a.handle(a.logout)).Methods(post)

	r.Handle("/users/all/v1", a.handle(a.usersAll)).Methods(get)
	r.Handle("/user/profile/v1", a.handle(a.userProfile)).Methods(get)
	r.Handle("/user/profile/setname/v1", a.handle(a.setName)).Methods(put)
	r.Handle("/user/profile/setemail/v1", a.handle(a.setEmail)).Methods(put)
	r.Handle("/user/profile/sethandle/v1", a.handle(a.setHandle)).Methods(put)
	r.Handle("/user/stats/v1", a.handle(a.userStats)).Methods(get)
	r.Handle("/users/stats/v1", a.handle(a.workspaceStats)).Methods(get)

	r.Handle("/admin/user/remove/v1", a.handle(a.adminRemove)).Methods(del)
	r.Handle("/admin/userpermission/change/v1", a.handle(a.adminPermission)).Methods(post)

	r.Handle("/channels/create/v2", a.handle(a.channelsCreate)).Methods(post)
	r.Handle("/channels/list/v2", a.handle(a.channelsList)).Methods(get)
	r.Handle("/channels/listall/v2", a.handle(a.channelsListAll)).Methods(get)
	r.Handle("/channel/details/v2", a.handle(a.channelDetails)).Methods(get)
	r.Handle("/channel/messages/v2", a.handle(a.channelMessages)).Methods(get)
	r.Handle("/channel/join/v2", a.handle(a.channelJoin)).Methods(post)
	r.Handle("/channel/invite/v2", a.handle(a.channelInvite)).Methods(post)
	r.Handle("/channel/leave/v1", a.handle(a.channelLeave)).Methods(post)
	r.Handle("/channel/addowner/v1", a.handle(a.channelAddOwner)).Methods(post)
	r.Handle("/channel/removeowner/v1", a.handle(a.channelRemoveOwner)).Methods(post)

	r.Handle("/dm/create/v1", a.handle(a.dmCreate)).Methods(post)
	r.Handle("/dm/list/v1", a.handle(a.dmList)).Methods(get)
	r.Handle("/dm/details/v1", a.handle(a.dmDetails)).Methods(get)
	r.Handle("/dm/messages/v1", a.handle(a.dmMessages)).Methods(get)
	r.Handle("/dm/leave/v1", a.handle(a.dmLeave)).Methods(post)
	r.Handle("/dm/remove/v1", a.handle(a.dmRemove)).Methods(del)

	r.Handle("/message/send/v1", a.handle(a.messageSend)).Methods(post)
	r.Handle("/message/senddm/v1", a.handle(a.messageSendDM)).Methods(post)
	r.Handle("/message/sendlater/v1", a.handle(a.messageSendLater)).Methods(post)
	r.Handle("/message/sendlaterdm/v1", a.handle(a.messageSendLaterDM)).Methods(post)
	r.Handle("/message/edit/v1", a.handle(a.messageEdit)).Methods(put)
	r.Handle("/message/remove/v1", a.handle(a.messageRemove)).Methods(del)
	r.Handle("/message/pin/v1", a.handle(a.messagePin)).Methods(post)
	r.Handle("/message/unpin/v1", a.handle(a.messageUnpin)).Methods(post)
	r.Handle("/message/react/v1", a.handle(a.messageReact)).Methods(post)
	r.Handle("/message/unreact/v1", a.handle(a.messageUnreact)).Methods(post)
	r.Handle("/message/share/v1", a.handle(a.messageShare)).Methods(post)
	r.Handle("/search/v1", a.handle(a.search)).Methods(get)

	r.Handle("/standup/start/v1", a.handle(a.standupStart)).Methods(post)
	r.Handle("/standup/active/v1", a.handle(a.standupActive)).Methods(get)
	r.Handle("/standup/send/v1", a.handle(a.standupSend)).Methods(post)

	r.Handle("/notifications/get/v1", a.handle(a.notifications)).Methods(get)
	r.HandleFunc("/notifications/stream/v1", a.handleStream).Methods(get)

	r.NotFoundHandler = http.HandlerFunc(a.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(a.methodNotAllowed)
}

func (a *api) livez(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.backend.Ping(ctx); err != nil {
		a.logger.Warn("readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{
		Code:    http.StatusNotFound,
		Name:    "System Error",
		Message: fmt.Sprintf("no route for %s", r.URL.Path),
	})
}

func (a *api) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{
		Code:    http.StatusMethodNotAllowed,
		Name:    "System Error",
		Message: fmt.Sprintf("%s not allowed on %s", r.Method, r.URL.Path),
	})
}

func (a *api) clear(r *http.Request) (any, error) {
	return empty{}, a.svc.Clear(r.Context())
}

// Auth

func (a *api) register(r *http.Request) (any, error) {
	req, err := decode[credentialsBody](r)
	if err != nil {
		return nil, err
	}
	return a.svc.Register(r.Context(), req.Email, req.Password, req.NameFirst, req.NameLast)
}

func (a *api) login(r *http.Request) (any, error) {
	req, err := decode[credentialsBody](r)
	if err != nil {
		return nil, err
	}
	return a.svc.Login(r.Context(), req.Email, req.Password)
}

func (a *api) logout(r *http.Request) (any, error) {
	req, err := decode[tokenBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.Logout(r.Context(), tokenFromRequest(r, req.Token))
}

// Users

func (a *api) usersAll(r *http.Request) (any, error) {
	users, err := a.svc.AllUsers(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"users": users}, nil
}

func (a *api) userProfile(r *http.Request) (any, error) {
	uid, err := queryInt(r, "u_id")
	if err != nil {
		return nil, err
	}
	p, err := a.svc.UserProfile(tokenFromRequest(r, ""), uid)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": p}, nil
}

func (a *api) setName(r *http.Request) (any, error) {
	req, err := decode[profileBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.SetName(r.Context(), tokenFromRequest(r, req.Token), req.NameFirst, req.NameLast)
}

func (a *api) setEmail(r *http.Request) (any, error) {
	req, err := decode[profileBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.SetEmail(r.Context(), tokenFromRequest(r, req.Token), req.Email)
}

func (a *api) setHandle(r *http.Request) (any, error) {
	req, err := decode[profileBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.SetHandle(r.Context(), tokenFromRequest(r, req.Token), req.Handle)
}

func (a *api) userStats(r *http.Request) (any, error) {
	st, err := a.svc.UserStats(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"user_stats": st}, nil
}

func (a *api) workspaceStats(r *http.Request) (any, error) {
	st, err := a.svc.WorkspaceStats(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"workspace_stats": st}, nil
}

// Admin

func (a *api) adminRemove(r *http.Request) (any, error) {
	req, err := decode[userBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.RemoveUser(r.Context(), tokenFromRequest(r, req.Token), req.UserID)
}

func (a *api) adminPermission(r *http.Request) (any, error) {
	req, err := decode[userBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.ChangePermission(r.Context(), tokenFromRequest(r, req.Token), req.UserID, req.PermissionID)
}

// Channels

func (a *api) channelsCreate(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	id, err := a.svc.CreateChannel(r.Context(), tokenFromRequest(r, req.Token), req.Name, req.IsPublic)
	if err != nil {
		return nil, err
	}
	return map[string]int{"channel_id": id}, nil
}

func (a *api) channelsList(r *http.Request) (any, error) {
	cs, err := a.svc.ListChannels(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"channels": cs}, nil
}

func (a *api) channelsListAll(r *http.Request) (any, error) {
	cs, err := a.svc.ListAllChannels(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"channels": cs}, nil
}

func (a *api) channelDetails(r *http.Request) (any, error) {
	cid, err := queryInt(r, "channel_id")
	if err != nil {
		return nil, err
	}
	return a.svc.ChannelDetails(tokenFromRequest(r, ""), cid)
}

func (a *api) channelMessages(r *http.Request) (any, error) {
	cid, err := queryInt(r, "channel_id")
	if err != nil {
		return nil, err
	}
	start, err := queryIntDefault(r, "start", 0)
	if err != nil {
		return nil, err
	}
	return a.svc.ChannelMessages(tokenFromRequest(r, ""), cid, start)
}

func (a *api) channelJoin(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.JoinChannel(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID)
}

func (a *api) channelInvite(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.InviteChannel(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.UserID)
}

func (a *api) channelLeave(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.LeaveChannel(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID)
}

func (a *api) channelAddOwner(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.AddOwner(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.UserID)
}

func (a *api) channelRemoveOwner(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.RemoveOwner(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.UserID)
}

// DMs

func (a *api) dmCreate(r *http.Request) (any, error) {
	req, err := decode[dmBody](r)
	if err != nil {
		return nil, err
	}
	id, err := a.svc.CreateDM(r.Context(), tokenFromRequest(r, req.Token), req.UserIDs)
	if err != nil {
		return nil, err
	}
	return map[string]int{"dm_id": id}, nil
}

func (a *api) dmList(r *http.Request) (any, error) {
	dms, err := a.svc.ListDMs(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"dms": dms}, nil
}

func (a *api) dmDetails(r *http.Request) (any, error) {
	did, err := queryInt(r, "dm_id")
	if err != nil {
		return nil, err
	}
	return a.svc.DMDetails(tokenFromRequest(r, ""), did)
}

func (a *api) dmMessages(r *http.Request) (any, error) {
	did, err := queryInt(r, "dm_id")
	if err != nil {
		return nil, err
	}
	start, err := queryIntDefault(r, "start", 0)
	if err != nil {
		return nil, err
	}
	return a.svc.DMMessages(tokenFromRequest(r, ""), did, start)
}

func (a *api) dmLeave(r *http.Request) (any, error) {
	req, err := decode[dmBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.LeaveDM(r.Context(), tokenFromRequest(r, req.Token), req.DMID)
}

func (a *api) dmRemove(r *http.Request) (any, error) {
	req, err := decode[dmBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.RemoveDM(r.Context(), tokenFromRequest(r, req.Token), req.DMID)
}

// Messages

func messageID(id int, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return map[string]int{"message_id": id}, nil
}

func (a *api) messageSend(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return messageID(a.svc.SendMessage(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.Message))
}

func (a *api) messageSendDM(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return messageID(a.svc.SendDM(r.Context(), tokenFromRequest(r, req.Token), req.DMID, req.Message))
}

func (a *api) messageSendLater(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return messageID(a.svc.SendLater(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.Message, req.TimeSent))
}

func (a *api) messageSendLaterDM(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return messageID(a.svc.SendLaterDM(r.Context(), tokenFromRequest(r, req.Token), req.DMID, req.Message, req.TimeSent))
}

func (a *api) messageEdit(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.EditMessage(r.Context(), tokenFromRequest(r, req.Token), req.MessageID, req.Message)
}

func (a *api) messageRemove(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.RemoveMessage(r.Context(), tokenFromRequest(r, req.Token), req.MessageID)
}

func (a *api) messagePin(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.PinMessage(r.Context(), tokenFromRequest(r, req.Token), req.MessageID)
}

func (a *api) messageUnpin(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.UnpinMessage(r.Context(), tokenFromRequest(r, req.Token), req.MessageID)
}

func (a *api) messageReact(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.React(r.Context(), tokenFromRequest(r, req.Token), req.MessageID, req.ReactID)
}

func (a *api) messageUnreact(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.Unreact(r.Context(), tokenFromRequest(r, req.Token), req.MessageID, req.ReactID)
}

func (a *api) messageShare(r *http.Request) (any, error) {
	req, err := decode[messageBody](r)
	if err != nil {
		return nil, err
	}
	return messageID(a.svc.Share(r.Context(), tokenFromRequest(r, req.Token), req.OgMessageID, req.Message, req.ChannelID, req.DMID))
}

func (a *api) search(r *http.Request) (any, error) {
	msgs, err := a.svc.Search(tokenFromRequest(r, ""), r.URL.Query().Get("query_str"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"messages": msgs}, nil
}

// Standups

func (a *api) standupStart(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	finish, err := a.svc.StartStandup(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.Length)
	if err != nil {
		return nil, err
	}
	return map[string]int64{"time_finish": finish}, nil
}

func (a *api) standupActive(r *http.Request) (any, error) {
	cid, err := queryInt(r, "channel_id")
	if err != nil {
		return nil, err
	}
	return a.svc.StandupActive(tokenFromRequest(r, ""), cid)
}

func (a *api) standupSend(r *http.Request) (any, error) {
	req, err := decode[channelBody](r)
	if err != nil {
		return nil, err
	}
	return empty{}, a.svc.SendStandup(r.Context(), tokenFromRequest(r, req.Token), req.ChannelID, req.Message)
}

// Notifications

func (a *api) notifications(r *http.Request) (any, error) {
	ns, err := a.svc.Notifications(tokenFromRequest(r, ""))
	if err != nil {
		return nil, err
	}
	return map[string]any{"notifications": ns}, nil
}
