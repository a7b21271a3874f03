package miner

import (
	"fmt"

	"github.com/VadiqueMe/TheHolyRogerCoin/mining"
	"github.com/btcsuite/btcd/txscript"
)

// rebuildCoinbaseWithExtraNonce replaces the placeholder height||OP_0
// coinbase scriptSig the Template Assembler wrote with
// height||extraNonce||COINBASE_FLAGS, truncating the flags tag so the
// whole scriptSig never exceeds mining.MaxCoinbaseScriptSigSize, then
// recomputes the block's merkle root to match the rewritten coinbase.
// Grounded on _examples/original_source/src/miner.cpp's
// IncrementExtraNonce.
func rebuildCoinbaseWithExtraNonce(tpl *mining.Template, height int32, extraNonce uint64, flags string) error {
	coinbase := tpl.Block.Transactions[0]
	if len(coinbase.TxIn) == 0 {
		return fmt.Errorf("miner: coinbase transaction has no inputs")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(height))
	builder.AddInt64(int64(extraNonce))
	script, err := builder.Script()
	if err != nil {
		return err
	}

	if budget := mining.MaxCoinbaseScriptSigSize - len(script); budget > 1 && flags != "" {
		tag := []byte(flags)
		// Leave room for the push opcode: one byte for pushes of up to 75
		// bytes, two (OP_PUSHDATA1 plus length) beyond that.
		maxTag := budget - 1
		if maxTag > 75 {
			maxTag = budget - 2
		}
		if len(tag) > maxTag {
			tag = tag[:maxTag]
		}
		tagBuilder := txscript.NewScriptBuilder()
		tagBuilder.AddData(tag)
		if tagScript, err := tagBuilder.Script(); err == nil &&
			len(script)+len(tagScript) <= mining.MaxCoinbaseScriptSigSize {
			script = append(script, tagScript...)
		}
	}

	coinbase.TxIn[0].SignatureScript = script
	mining.RecomputeMerkleRoot(tpl.Block)
	return nil
}
