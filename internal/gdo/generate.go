package gdo

import (
	"github.com/nerrad567/gdogen/internal/codegen"
)

// controllerAutoID is used when the secplus_gdo block has no id.
const controllerAutoID = "secplus_gdo_gdocomponent_id"

// Program validates the document and generates its units. The controller
// unit comes first; every sensor unit depends on it. Any error aborts the
// pass and no program is returned.
func (d *Document) Program(function string) (*codegen.Program, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	scope := codegen.NewScope()
	ids, err := d.assignIDs(scope)
	if err != nil {
		return nil, err
	}

	prog := codegen.NewProgram(function)
	prog.Source = d.Source

	var controllerID codegen.ID
	if d.Controller != nil {
		controllerID = ids[ControllerKey]
		unit, err := d.Controller.generate(scope, controllerID)
		if err != nil {
			codegen.SetLine(err, d.Controller.line)
			return nil, err
		}
		if err := prog.Append(unit); err != nil {
			return nil, err
		}
	}

	for i := range d.Entries {
		e := &d.Entries[i]

		parent := e.Config.SecplusGDOID
		if parent == "" {
			if controllerID == "" {
				return nil, &codegen.ReferenceError{
					Path:   e.Path + ".secplus_gdo_id",
					ID:     ControllerKey,
					Reason: "is not configured in this file",
					Line:   e.Line,
				}
			}
			parent = controllerID
		}

		unit := codegen.NewUnit(e.Path, ControllerKey)
		unit.AddInclude(Header)
		id := ids[e.Path]
		err := codegen.GenerateBinding(unit, scope, codegen.Binding{
			Path:        e.Path,
			ID:          id,
			Class:       e.Platform.Class,
			Type:        e.Config.Type,
			Registry:    e.Platform.Types,
			ParentID:    parent,
			ParentClass: ControllerClass,
			ParentPath:  e.Path + ".secplus_gdo_id",
			Entity:      e.Platform.entityStatements(id, &e.Config),
		})
		if err != nil {
			codegen.SetLine(err, e.Line)
			return nil, err
		}
		if err := prog.Append(unit); err != nil {
			return nil, err
		}
	}

	return prog, nil
}

// assignIDs claims every explicit ID first, in file order, then allocates
// automatic IDs for entries without one. The result is keyed by entry path.
func (d *Document) assignIDs(scope *codegen.Scope) (map[string]codegen.ID, error) {
	ids := make(map[string]codegen.ID, len(d.Entries)+1)

	if d.Controller != nil && d.Controller.ID != "" {
		if err := scope.Claim(d.Controller.ID, ControllerKey); err != nil {
			codegen.SetLine(err, d.Controller.line)
			return nil, err
		}
		ids[ControllerKey] = d.Controller.ID
	}
	for _, e := range d.Entries {
		if e.Config.ID == "" {
			continue
		}
		if err := scope.Claim(e.Config.ID, e.Path); err != nil {
			codegen.SetLine(err, e.Line)
			return nil, err
		}
		ids[e.Path] = e.Config.ID
	}

	if d.Controller != nil && d.Controller.ID == "" {
		ids[ControllerKey] = scope.Allocate(controllerAutoID, ControllerKey)
	}
	for _, e := range d.Entries {
		if e.Config.ID == "" {
			ids[e.Path] = scope.Allocate(e.Platform.AutoIDBase(), e.Path)
		}
	}

	return ids, nil
}

// generate emits the controller unit: pin defines, instantiation and
// component registration.
func (c *ControllerConfig) generate(scope *codegen.Scope, id codegen.ID) (*codegen.Unit, error) {
	if err := scope.Declare(id, ControllerClass, ControllerKey); err != nil {
		return nil, err
	}
	decl, err := scope.Resolve(id, ControllerKey)
	if err != nil {
		return nil, err
	}

	unit := codegen.NewUnit(ControllerKey)
	unit.AddInclude(Header)
	unit.AddDefine("GDO_UART_RX_PIN", codegen.IntLiteral(*c.InputGDOPin))
	unit.AddDefine("GDO_UART_TX_PIN", codegen.IntLiteral(*c.OutputGDOPin))
	if c.InputObstPin != nil {
		unit.AddDefine("GDO_OBST_INPUT_PIN", codegen.IntLiteral(*c.InputObstPin))
	}
	unit.AddGlobal(decl)
	unit.Add(codegen.AssignNew{ID: id, Class: ControllerClass})
	unit.Add(codegen.AppCall("register_component", id))
	return unit, nil
}
