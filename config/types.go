package config

// FeeSchedule configures the staking vault fee parameters for one asset.
type FeeSchedule struct {
	ManagementFeeBps  uint64 `toml:"ManagementFeeBps"`
	PerformanceFeeBps uint64 `toml:"PerformanceFeeBps"`
	HurdleRateBps     uint64 `toml:"HurdleRateBps"`
	HardHurdle        bool   `toml:"HardHurdle"`
}

// Asset describes one onboarded settlement asset and its vault pair. Amounts
// are decimal strings in the asset's smallest unit; "0" means unlimited.
type Asset struct {
	Symbol          string      `toml:"Symbol"`
	Address         string      `toml:"Address"`
	KToken          string      `toml:"KToken"`
	MinterVault     string      `toml:"MinterVault"`
	StakingVault    string      `toml:"StakingVault"`
	MaxMintPerBatch string      `toml:"MaxMintPerBatch"`
	MaxBurnPerBatch string      `toml:"MaxBurnPerBatch"`
	MaxTotalAssets  string      `toml:"MaxTotalAssets"`
	Fees            FeeSchedule `toml:"Fees"`
}

// Telemetry configures the optional OpenTelemetry exporters.
type Telemetry struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Metrics     bool   `toml:"Metrics"`
	Traces      bool   `toml:"Traces"`
	Environment string `toml:"Environment"`
}

// Config is the daemon configuration persisted as TOML.
type Config struct {
	ListenAddress             string    `toml:"ListenAddress"`
	DataDir                   string    `toml:"DataDir"`
	ChainID                   uint64    `toml:"ChainID"`
	Decimals                  uint8     `toml:"Decimals"`
	Environment               string    `toml:"Environment"`
	LogFile                   string    `toml:"LogFile"`
	SettlementCooldownSeconds int64     `toml:"SettlementCooldownSeconds"`
	YieldToleranceBps         uint64    `toml:"YieldToleranceBps"`
	Admins                    []string  `toml:"Admins"`
	Relayers                  []string  `toml:"Relayers"`
	Guardians                 []string  `toml:"Guardians"`
	Institutions              []string  `toml:"Institutions"`
	Assets                    []Asset   `toml:"Assets"`
	Telemetry                 Telemetry `toml:"Telemetry"`
}
