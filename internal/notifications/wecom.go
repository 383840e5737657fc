package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"autocheck/internal/profile"
	"autocheck/internal/services"
)

const (
	errcodeInvalidToken = 40014
	errcodeTokenExpired = 42001
	tokenSafetyMargin   = 5 * time.Minute
)

type apiResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type textMessage struct {
	ToUser  string `json:"touser"`
	MsgType string `json:"msgtype"`
	AgentID int    `json:"agentid"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

func (p *Provider) sendText(ctx context.Context, creds profile.WeCom, text string) error {
	agentID, err := creds.AgentID.Int()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "wecom", "send", fmt.Sprintf("agentid %q is not numeric", creds.AgentID), err)
	}
	msg := textMessage{ToUser: creds.Recipient(), MsgType: "text", AgentID: agentID}
	msg.Text.Content = text
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode wecom message: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := p.token(ctx, creds)
		if err != nil {
			return err
		}
		endpoint := p.baseURL + "/cgi-bin/message/send?access_token=" + url.QueryEscape(token)
		resp, err := p.do(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return err
		}
		switch resp.ErrCode {
		case 0:
			return nil
		case errcodeInvalidToken, errcodeTokenExpired:
			p.invalidate(creds)
			continue
		default:
			return services.Wrap(services.ErrRejected, "wecom", "send", fmt.Sprintf("errcode %d: %s", resp.ErrCode, resp.ErrMsg), nil)
		}
	}
	return services.Wrap(services.ErrAuth, "wecom", "send", "access token rejected after refresh", nil)
}

func (p *Provider) token(ctx context.Context, creds profile.WeCom) (string, error) {
	if token, ok := p.cached(creds); ok {
		return token, nil
	}
	query := url.Values{}
	query.Set("corpid", creds.CorpID)
	query.Set("corpsecret", creds.Secret)
	resp, err := p.do(ctx, http.MethodGet, p.baseURL+"/cgi-bin/gettoken?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	if resp.ErrCode != 0 || resp.AccessToken == "" {
		return "", services.Wrap(services.ErrAuth, "wecom", "gettoken", fmt.Sprintf("errcode %d: %s", resp.ErrCode, resp.ErrMsg), nil)
	}
	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl > 2*tokenSafetyMargin {
		ttl -= tokenSafetyMargin
	}
	p.store(creds, resp.AccessToken, ttl)
	return resp.AccessToken, nil
}

func (p *Provider) do(ctx context.Context, method, endpoint string, body []byte) (apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build wecom request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return apiResponse{}, services.Wrap(services.ErrTransport, "wecom", "request", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return apiResponse{}, services.Wrap(services.ErrTransport, "wecom", "request",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)), nil)
	}
	var decoded apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return apiResponse{}, services.Wrap(services.ErrTransport, "wecom", "decode", "unreadable response", err)
	}
	return decoded, nil
}
