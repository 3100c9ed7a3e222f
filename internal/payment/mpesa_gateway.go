package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"duka-be/internal/logger"
	"duka-be/internal/metrics"

	"go.uber.org/zap"
)

const (
	mpesaTimestampLayout = "20060102150405"
	mpesaTransactionType = "CustomerPayBillOnline"

	// tokens are refreshed this long before the gateway says they expire
	tokenExpiryMargin = time.Minute
)

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	CallbackURL    string
}

type mpesaGateway struct {
	cfg        MpesaConfig
	httpClient *http.Client
	nairobiLoc *time.Location
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// ----------------- Constructor -----------------

func NewMpesaGateway(cfg MpesaConfig) Gateway {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		logger.L().Warn("M-Pesa consumer credentials are empty")
	}

	return &mpesaGateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		nairobiLoc: NairobiLocation(),
		now:        time.Now,
	}
}

// NairobiLocation is the zone the gateway uses for request and transaction
// timestamps. Falls back to a fixed UTC+3 when tzdata is unavailable.
func NairobiLocation() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

// ----------------- Access token -----------------

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

func (g *mpesaGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && g.now().Before(g.tokenExpiry) {
		return g.token, nil
	}

	url := g.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read mpesa token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.FromCtx(ctx).Error("M-Pesa token request failed",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", body),
		)
		return "", fmt.Errorf("mpesa token error: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode mpesa token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("mpesa token response has no access_token")
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(tr.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	g.token = tr.AccessToken
	g.tokenExpiry = g.now().Add(ttl - tokenExpiryMargin)
	return g.token, nil
}

func (g *mpesaGateway) invalidateToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
}

// password is base64(shortcode + passkey + timestamp).
func (g *mpesaGateway) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.cfg.Shortcode + g.cfg.Passkey + timestamp))
}

// ----------------- STK push -----------------

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (g *mpesaGateway) Push(ctx context.Context, pr PushRequest) (*PushResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("account_reference", pr.AccountReference),
		zap.Int64("amount", pr.Amount),
	)

	token, err := g.accessToken(ctx)
	if err != nil {
		log.Error("Failed to obtain M-Pesa access token", zap.Error(err))
		return nil, err
	}

	timestamp := g.now().In(g.nairobiLoc).Format(mpesaTimestampLayout)
	jsonBody, err := json.Marshal(stkPushRequest{
		BusinessShortCode: g.cfg.Shortcode,
		Password:          g.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   mpesaTransactionType,
		Amount:            pr.Amount,
		PartyA:            pr.Phone,
		PartyB:            g.cfg.Shortcode,
		PhoneNumber:       pr.Phone,
		CallBackURL:       g.cfg.CallbackURL,
		AccountReference:  pr.AccountReference,
		TransactionDesc:   pr.Description,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewBuffer(jsonBody))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	timer := metrics.StartTimer()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.Error("M-Pesa request failed", zap.Error(err))
		return nil, fmt.Errorf("mpesa stk push: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read mpesa response: %w", err)
	}

	log = log.With(
		zap.Int("http_status", resp.StatusCode),
		timer.Latency(),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		g.invalidateToken()
	}

	var res stkPushResponse
	decodeErr := json.Unmarshal(bodyBytes, &res)

	if resp.StatusCode != http.StatusOK {
		log.Error("M-Pesa returned non-success status", zap.ByteString("response", bodyBytes))
		if decodeErr == nil && res.ErrorMessage != "" {
			return nil, &RejectedError{Code: res.ErrorCode, Description: res.ErrorMessage}
		}
		return nil, fmt.Errorf("mpesa error: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		log.Error("Failed decoding M-Pesa response", zap.Error(decodeErr))
		return nil, decodeErr
	}

	if res.ResponseCode != "0" {
		log.Warn("M-Pesa declined push request",
			zap.String("response_code", res.ResponseCode),
			zap.String("response_description", res.ResponseDescription),
		)
		return nil, &RejectedError{Code: res.ResponseCode, Description: res.ResponseDescription}
	}

	log.Info("M-Pesa push accepted",
		logger.MerchantRequestID(res.MerchantRequestID),
		logger.CheckoutRequestID(res.CheckoutRequestID),
	)

	return &PushResult{
		MerchantRequestID:   res.MerchantRequestID,
		CheckoutRequestID:   res.CheckoutRequestID,
		ResponseCode:        res.ResponseCode,
		ResponseDescription: res.ResponseDescription,
		CustomerMessage:     res.CustomerMessage,
	}, nil
}
