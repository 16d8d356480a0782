package tool

import "time"

// Chain service endpoints.
const (
	CreateWalletPath = "/agent-chain/chain/createWalletAndDDO"
	IssueVCPath      = "/agent-chain/chain/vc/issue"
)

// NewCreateWalletTool returns the create_wallet tool: a body-less POST that
// creates an on-chain wallet plus its DDO document and yields the wallet
// address (data.walletAddress).
func NewCreateWalletTool(baseURL string, timeout time.Duration) *HTTPTool {
	return NewHTTPTool("create_wallet", baseURL, CreateWalletPath, func(o *HTTPOptions) {
		o.Description = "Create an on-chain wallet and DDO document"
		o.NoBody = true
		o.ResultPath = "data.walletAddress"
		if timeout > 0 {
			o.Timeout = timeout
		}
	})
}

// NewIssueVCTool returns the create_vc tool issuing a verifiable credential
// for subjectBid and yielding result.vcContent.
func NewIssueVCTool(baseURL string, timeout time.Duration) *HTTPTool {
	return NewHTTPTool("create_vc", baseURL, IssueVCPath, func(o *HTTPOptions) {
		o.Description = "Issue a verifiable credential for a wallet"
		o.ResultPath = "result.vcContent"
		o.Parameters = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subjectBid":  map[string]any{"type": "string", "description": "Wallet address of the holder"},
				"subjectType": map[string]any{"type": "string", "description": "Holder category, defaults to Agent"},
			},
			"required": []string{"subjectBid"},
		}
		if timeout > 0 {
			o.Timeout = timeout
		}
	})
}

// NewChainTools returns every chain-service tool bound to baseURL.
func NewChainTools(baseURL string, timeout time.Duration) []Tool {
	return []Tool{
		NewCreateWalletTool(baseURL, timeout),
		NewIssueVCTool(baseURL, timeout),
	}
}
