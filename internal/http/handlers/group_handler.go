// Group and device HTTP handlers.
//
// This file exposes the pairing flow:
//   - POST /groups                     (create a group and its pairing code)
//   - POST /groups/{groupid}/devices   (pair a device with the code)
//   - GET  /groups/{groupid}/devices   (list paired devices; secured)
//   - GET  /token                      (exchange device credentials for a token)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/auth"
	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/utils"
)

// Pairing event names reported to ObservePairing.
const (
	EventGroupCreated   = "group_created"
	EventDevicePaired   = "device_paired"
	EventTokenRequested = "token_requested"
)

// CreateGroupResponse is returned by POST /groups. The pairing code is shown
// once and is consumed by the first device.
type CreateGroupResponse struct {
	ID          uint64 `json:"id"          example:"42"`
	PairingCode string `json:"pairingCode" example:"K3XQ7M"`
}

// RegisterDeviceRequest is the JSON payload for pairing a device.
type RegisterDeviceRequest struct {
	PairingCode string `json:"pairingCode" binding:"required" example:"K3XQ7M"`
	Name        string `json:"name"        binding:"required" example:"Kitchen tablet"`
	// Secret is chosen by the device and required for token requests.
	Secret string `json:"secret" binding:"required" example:"correct horse battery staple"`
}

// DeviceResponse is the public view of a device.
type DeviceResponse struct {
	ID         uint64 `json:"id"         example:"7"`
	GroupID    uint64 `json:"groupId"    example:"42"`
	Name       string `json:"name"       example:"Kitchen tablet"`
	Authorized bool   `json:"authorized" example:"true"`
	CreatedAt  string `json:"createdAt"  example:"2024-05-01T12:00:00.000Z"`
}

// TokenResponse carries a device token.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType" example:"Bearer"`
	ExpiresAt string `json:"expiresAt" example:"2024-05-02T12:00:00.000Z"`
}

func deviceResponse(d *domain.Device) DeviceResponse {
	return DeviceResponse{
		ID:         d.ID,
		GroupID:    d.GroupID,
		Name:       d.Name,
		Authorized: d.Authorized,
		CreatedAt:  utils.FormatTime(d.CreatedAt),
	}
}

func (h *Handlers) observePairing(event string, err error) {
	if h.observe != nil {
		h.observe(event, err)
	}
}

// CreateGroup godoc
// @ID          createGroup
// @Summary     Create a group
// @Description Creates an empty group and returns its id and single-use pairing code.
// @Tags        Groups
// @Produce     json
//
// @Success     201  {object}  handlers.CreateGroupResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /groups [post]
func (h *Handlers) CreateGroup(c *gin.Context) {
	g, err := h.pairing.CreateGroup(c.Request.Context())
	h.observePairing(EventGroupCreated, err)
	if err != nil {
		failErr(c, err)
		return
	}
	resp := CreateGroupResponse{ID: g.ID}
	if g.PairingCode != nil {
		resp.PairingCode = *g.PairingCode
	}
	ok(c, http.StatusCreated, resp)
}

// RegisterDevice godoc
// @ID          registerDevice
// @Summary     Pair a device
// @Description Pairs a device using the group's pairing code. The first device is authorized.
// @Tags        Groups
// @Accept      json
// @Produce     json
//
// @Param       groupid  path  int  true  "Group ID"
// @Param       body     body  handlers.RegisterDeviceRequest  true  "Pairing payload"
//
// @Success     201  {object}  handlers.DeviceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     403  {object}  handlers.ErrorResponse  "Wrong or consumed pairing code"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Router      /groups/{groupid}/devices [post]
func (h *Handlers) RegisterDevice(c *gin.Context) {
	gid, valid := groupID(c)
	if !valid {
		return
	}
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "pairingCode, name and secret are required")
		return
	}
	dev, err := h.pairing.RegisterDevice(c.Request.Context(), gid, req.PairingCode, req.Name, req.Secret)
	h.observePairing(EventDevicePaired, err)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, deviceResponse(dev))
}

// ListDevices godoc
// @ID          listDevices
// @Summary     List devices of a group
// @Tags        Groups
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid  path  int  true  "Group ID"
//
// @Success     200  {array}   handlers.DeviceResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "Token for another group"
// @Router      /groups/{groupid}/devices [get]
func (h *Handlers) ListDevices(c *gin.Context) {
	gid, valid := groupID(c)
	if !valid {
		return
	}
	devs, err := h.pairing.ListDevices(c.Request.Context(), gid)
	if err != nil {
		failErr(c, err)
		return
	}
	out := make([]DeviceResponse, 0, len(devs))
	for i := range devs {
		out = append(out, deviceResponse(&devs[i]))
	}
	ok(c, http.StatusOK, out)
}

// IssueToken godoc
// @ID          issueToken
// @Summary     Obtain a device token
// @Description Exchanges HTTP Basic credentials (device id and secret) for a bearer token.
// @Tags        Auth
// @Produce     json
// @Security    BasicAuth
//
// @Success     200  {object}  handlers.TokenResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     403  {object}  handlers.ErrorResponse  "Device not authorized"
// @Router      /token [get]
func (h *Handlers) IssueToken(c *gin.Context) {
	user, secret, found := c.Request.BasicAuth()
	deviceID, err := strconv.ParseUint(user, 10, 64)
	if !found || err != nil || secret == "" {
		c.Header("WWW-Authenticate", `Basic realm="instalist"`)
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "device id and secret required")
		return
	}

	dev, err := h.pairing.Authenticate(c.Request.Context(), deviceID, secret)
	h.observePairing(EventTokenRequested, err)
	if err != nil {
		if status, _ := statusFor(err); status == http.StatusUnauthorized {
			c.Header("WWW-Authenticate", `Basic realm="instalist"`)
		}
		failErr(c, err)
		return
	}

	tok, exp, err := h.tokens.Issue(auth.Principal{DeviceID: dev.ID, GroupID: dev.GroupID})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, TokenResponse{
		Token:     tok,
		TokenType: "Bearer",
		ExpiresAt: utils.FormatTime(exp),
	})
}
