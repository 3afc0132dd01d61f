package state

var (
	stakingPositionPrefix = []byte("staking/position/")
	stakingTotalPrefix    = []byte("staking/total/")
	stakingRatePrefix     = []byte("staking/rate/")
	balancePrefixFormat   = "balances/%s/"
	supplyKeyFormat       = "supply/%s"
	minterKeyFormat       = "minter/%s"
	markerKeyFormat       = "marker/%s/%s"
)
