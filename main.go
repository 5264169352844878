package main

import (
	"github.com/caarlos0/env/v11"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"go.uber.org/zap"

	"github.com/Jayrald07/blockchain-supplychain-chaincode/chaincode"
)

// config comes from the environment the peer (or the chaincode-as-a-service
// deployment) provides. When Address is set the process serves as an
// external chaincode server; otherwise it starts embedded.
type config struct {
	CCID    string `env:"CHAINCODE_ID"`
	Address string `env:"CHAINCODE_SERVER_ADDRESS"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal("parse environment", zap.Error(err))
	}

	cc, err := contractapi.NewChaincode(&chaincode.SupplyContract{}, &chaincode.RegistryContract{})
	if err != nil {
		logger.Fatal("create chaincode", zap.Error(err))
	}

	cc.Info.Title = "supplychain"
	cc.Info.Version = "1.0"

	if cfg.Address != "" {
		server := &shim.ChaincodeServer{
			CCID:     cfg.CCID,
			Address:  cfg.Address,
			CC:       cc,
			TLSProps: shim.TLSProperties{Disabled: true},
		}
		logger.Info("starting chaincode server",
			zap.String("ccid", cfg.CCID),
			zap.String("address", cfg.Address))
		if err := server.Start(); err != nil {
			logger.Fatal("serve chaincode", zap.Error(err))
		}
		return
	}

	logger.Info("starting chaincode")
	if err := cc.Start(); err != nil {
		logger.Fatal("start chaincode", zap.Error(err))
	}
}
