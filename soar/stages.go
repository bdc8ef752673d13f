package soar

import (
	"context"
	"fmt"

	"triage/core"
)

// WhitelistStage returns a stage that checks the case indicators against the global
// whitelists. A store failure fails the stage; a hit is reported in the result data.
func WhitelistStage(number int, store core.WhitelistStore) Stage {
	return Stage{
		Number:      number,
		Title:       "Check global whitelist",
		Description: "Check the indicators of the case against the global whitelists",
		Run: func(ctx context.Context, cf *core.CaseFile) (StageResult, error) {
			if store == nil {
				return StageResult{}, Permanent(fmt.Errorf("%w: whitelist store must not be nil", core.ErrType))
			}
			hit, err := cf.CheckWhitelist(ctx, store)
			if err != nil {
				return StageResult{}, err
			}
			if hit {
				return StageResult{
					Message: "Case indicators are on a global whitelist.",
					Data:    map[string]interface{}{"whitelisted": true},
				}, nil
			}
			return StageResult{
				Message: "No case indicator is whitelisted.",
				Data:    map[string]interface{}{"whitelisted": false},
			}, nil
		},
	}
}
