package reseller

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ESIM is the profile issued by the reseller for one purchased package unit.
type ESIM struct {
	ICCID        string
	QRCodeText   string
	SMDPAddress  string
	MatchingID   string
	Expiry       string
	DataQuantity string
	Raw          map[string]interface{}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status      bool   `json:"status"`
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

// envelope is the reseller's common response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func (e envelope) errorMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	default:
		return "unknown error from reseller"
	}
}

// field aliases seen across reseller payload versions
var (
	iccidKeys        = []string{"iccid", "ICCID"}
	qrKeys           = []string{"qr_code_text", "qrcode_text", "qr_code", "qrcode", "lpa"}
	smdpKeys         = []string{"smdp_address", "smdp", "sm_dp_address"}
	matchingIDKeys   = []string{"matching_id", "activation_code"}
	expiryKeys       = []string{"expiry", "expired_at", "expires_at", "validity"}
	dataQuantityKeys = []string{"data_quantity", "data", "data_amount"}
)

// parseESIM reads the purchase payload. The reseller returns either a single
// object or a one-element list.
func parseESIM(data json.RawMessage) (*ESIM, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		var list []map[string]interface{}
		if lerr := json.Unmarshal(data, &list); lerr != nil || len(list) == 0 {
			return nil, fmt.Errorf("decode esim payload: %w", err)
		}
		raw = list[0]
	}
	if raw == nil {
		return nil, fmt.Errorf("decode esim payload: empty data")
	}

	e := &ESIM{
		ICCID:        pick(raw, iccidKeys),
		QRCodeText:   pick(raw, qrKeys),
		SMDPAddress:  pick(raw, smdpKeys),
		MatchingID:   pick(raw, matchingIDKeys),
		Expiry:       pick(raw, expiryKeys),
		DataQuantity: pick(raw, dataQuantityKeys),
		Raw:          raw,
	}
	if e.ICCID == "" {
		return nil, fmt.Errorf("esim payload has no iccid")
	}
	return e, nil
}

func pick(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		}
	}
	return ""
}
